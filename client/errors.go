package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnknownPrefix is returned when the server does not know the requested
	// namespace prefix. The set of valid prefixes is fixed, so retrying the
	// same request cannot succeed.
	ErrUnknownPrefix = errors.New("unknown lock prefix")

	// ErrRateLimited is returned when the per-key release budget on the server
	// is exhausted. The budget refills slowly by design, so the client does not
	// retry these; back off and try again later.
	ErrRateLimited = errors.New("release rate limit exceeded")
)

// APIError is a non-success answer from the lock-manager API. The server
// writes plain-text error bodies; Message carries that text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("the API answered %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes onto sentinel errors, so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrUnknownPrefix
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

func newAPIError(statusCode int, body []byte) *APIError {
	message := strings.TrimSpace(string(body))

	if message == "" {
		message = "(empty error body)"
	}

	return &APIError{StatusCode: statusCode, Message: message}
}
