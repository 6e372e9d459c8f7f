package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type releaseRequest struct {
	ID string `json:"id"`
}

// release requests a best-effort release of one reservation. It answers 202
// whether or not the ID was found, mirroring the release contract: the call
// never fails, the TTL is the backstop. Each lock key has its own rate
// limiter, because every release costs a writer lease round trip that slows
// down all other writers.
func (s *Server) release(resp http.ResponseWriter, req *http.Request) {
	started := time.Now()

	coordinator, prefix, name, ok := s.lockVars(resp, req, started)
	if !ok {
		return
	}

	key := string(prefix) + "/" + name

	if !s.getRateLimiter(key).Allow() {
		err := fmt.Errorf("too many release requests for %s", key)
		s.writeErrorResponse(err, http.StatusTooManyRequests, resp, req, started)

		return
	}

	if req.ContentLength <= 0 {
		err := errors.New("missing POST body")
		s.writeErrorResponse(err, http.StatusBadRequest, resp, req, started)

		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		err = fmt.Errorf("failed to read POST body: %w", err)
		s.writeErrorResponse(err, http.StatusInternalServerError, resp, req, started)

		return
	}

	var release releaseRequest

	if err := json.Unmarshal(body, &release); err != nil {
		err = fmt.Errorf("failed to decode POST body: %w", err)
		s.writeErrorResponse(err, http.StatusBadRequest, resp, req, started)

		return
	}

	if release.ID == "" {
		err := errors.New("missing reservation ID")
		s.writeErrorResponse(err, http.StatusBadRequest, resp, req, started)

		return
	}

	// The coordinator's own release retry budget is minutes; the handler must
	// answer within its request timeout. Cutting the release short is fine,
	// the reservation's TTL is the backstop either way.
	ctx, cancel := context.WithTimeout(req.Context(), s.releaseBudget())
	defer cancel()

	coordinator.Release(ctx, name, release.ID)

	// The cached listing is stale the moment a release goes through.
	if err := s.holdersCache.Delete(req.Context(), key); err != nil {
		s.logger.Debugf("Failed to invalidate holders cache for %s: %s", key, err)
	}

	resp.Header().Add("Content-Type", "text/plain")
	resp.WriteHeader(http.StatusAccepted)

	if _, err := resp.Write([]byte("release requested")); err != nil {
		s.logger.Errorf("Failed to write release response: %s", err)
	}

	s.metrics.AddHTTPRequestMetric(req.URL.Path, req.Method, http.StatusAccepted, time.Since(started))
}

// releaseBudget leaves one second of the request timeout for parsing and
// writing the response, with a one second floor so the release always gets at
// least one attempt at the writer lease.
func (s *Server) releaseBudget() time.Duration {
	budget := s.cfg.RequestTimeout - time.Second

	if budget < time.Second {
		budget = time.Second
	}

	return budget
}
