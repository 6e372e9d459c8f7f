package locking

import (
	"context"
	"time"

	"github.com/peteraglen/lock-manager/common"
)

// retryWithBackoff runs fn up to tries times, sleeping delay * attempt between
// attempts (linear backoff). It stops early when fn succeeds, when shouldRetry
// rejects the error, or when the context is cancelled; in the last case the
// context error is returned.
func retryWithBackoff(ctx context.Context, tries int, delay time.Duration, shouldRetry func(error) bool, logger common.Logger, failureMessage string, fn func() error) error {
	var err error

	for attempt := 1; attempt <= tries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !shouldRetry(err) || attempt == tries {
			return err
		}

		sleep := delay * time.Duration(attempt)
		logger.Infof("%s, retrying in %v (attempt %d/%d): %s", failureMessage, sleep, attempt, tries, err)

		timer := time.NewTimer(sleep)

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return err
}
