package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/peteraglen/lock-manager/locking"
)

// holderView is the wire form of one reservation in a holders listing.
type holderView struct {
	Concurrency int       `json:"concurrency"`
	Created     time.Time `json:"created"`
	Owner       string    `json:"owner"`
	TTL         int       `json:"ttl"`
	Expired     bool      `json:"expired"`
}

type holdersResponse struct {
	Key     string                `json:"key"`
	Count   int                   `json:"count"`
	Holders map[string]holderView `json:"holders"`
}

// holders lists the current reservations for one lock key. The listing is
// served through a short-lived cache and reads outside the writer lease, so it
// is a stale view by contract; expired records that have not been evicted yet
// are included and flagged.
func (s *Server) holders(resp http.ResponseWriter, req *http.Request) {
	started := time.Now()

	coordinator, prefix, name, ok := s.lockVars(resp, req, started)
	if !ok {
		return
	}

	cacheKey := string(prefix) + "/" + name

	if cached, ok := s.holdersCache.Get(req.Context(), cacheKey); ok {
		s.writeJSONResponse([]byte(cached), resp, req, started)
		return
	}

	keyLocks, err := coordinator.Get(req.Context(), name)
	if err != nil {
		err = fmt.Errorf("failed to read lock %s/%s: %w", prefix, name, err)
		s.writeErrorResponse(err, statusCodeFor(err), resp, req, started)

		return
	}

	now := time.Now().UTC()
	response := holdersResponse{
		Key:     keyLocks.Key,
		Count:   len(keyLocks.Locks),
		Holders: make(map[string]holderView, len(keyLocks.Locks)),
	}

	for id, lock := range keyLocks.Locks {
		response.Holders[id] = holderView{
			Concurrency: lock.Concurrency,
			Created:     lock.Created,
			Owner:       lock.Owner,
			TTL:         lock.TTL,
			Expired:     lock.Expired(now),
		}
	}

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		err = fmt.Errorf("failed to marshal holders listing: %w", err)
		s.writeErrorResponse(err, http.StatusInternalServerError, resp, req, started)

		return
	}

	s.holdersCache.Set(req.Context(), cacheKey, string(data), s.cfg.HoldersCacheTTL)
	s.writeJSONResponse(data, resp, req, started)
}

func (s *Server) writeJSONResponse(data []byte, resp http.ResponseWriter, req *http.Request, started time.Time) {
	resp.Header().Add("Content-Type", "application/json")
	resp.WriteHeader(http.StatusOK)

	if _, err := resp.Write(data); err != nil {
		s.logger.Errorf("Failed to write response: %s", err)
	}

	s.metrics.AddHTTPRequestMetric(req.URL.Path, req.Method, http.StatusOK, time.Since(started))
}

func statusCodeFor(err error) int {
	if errors.Is(err, locking.ErrInvalidLock) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
