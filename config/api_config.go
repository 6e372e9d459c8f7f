package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation constants for APIConfig.
const (
	// MinRequestTimeout and MaxRequestTimeout bound the per-request handler
	// timeout. Lock document reads are a single backend round trip, so even
	// the minimum leaves plenty of headroom.
	MinRequestTimeout = time.Second
	MaxRequestTimeout = time.Minute

	// DefaultRequestTimeout is the default per-request handler timeout.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultHoldersCacheTTL is how long a holders listing may be served from
	// the response cache. Listings are an operator convenience and explicitly
	// a stale view (they read outside the writer lease), so a couple of
	// seconds of staleness is acceptable in exchange for shielding the
	// backend from dashboard refresh storms.
	DefaultHoldersCacheTTL = 2 * time.Second

	// DefaultReleasesPerSecond and DefaultReleaseBurst rate-limit the
	// release endpoint per lock key. Release is best effort and idempotent,
	// but each call costs a writer lease round trip, so hammering it hurts
	// every other writer in the fleet.
	DefaultReleasesPerSecond = 1.0
	DefaultReleaseBurst      = 3
)

// APIConfig holds configuration for the lock inspection HTTP server.
type APIConfig struct {
	// Port is the TCP port the HTTP server listens on.
	Port string `json:"port" yaml:"port"`

	// RequestTimeout is the per-request handler timeout.
	// Default: 10 seconds. Must be between 1 second and 1 minute.
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`

	// HoldersCacheTTL is how long holders listings are served from cache
	// before the backend is consulted again. Set to 0 to use the default;
	// caching cannot be disabled because listings are stale by contract.
	HoldersCacheTTL time.Duration `json:"holdersCacheTtl" yaml:"holdersCacheTtl"`

	// ReleasesPerSecond and ReleaseBurst rate-limit POST releases per lock
	// key.
	ReleasesPerSecond float64 `json:"releasesPerSecond" yaml:"releasesPerSecond"`
	ReleaseBurst      int     `json:"releaseBurst" yaml:"releaseBurst"`
}

// NewDefaultAPIConfig returns an APIConfig with all tunables at their
// defaults. Port is intentionally left empty and must be set before use.
func NewDefaultAPIConfig() *APIConfig {
	return &APIConfig{
		RequestTimeout:    DefaultRequestTimeout,
		HoldersCacheTTL:   DefaultHoldersCacheTTL,
		ReleasesPerSecond: DefaultReleasesPerSecond,
		ReleaseBurst:      DefaultReleaseBurst,
	}
}

// SetDefaults sets default values for any fields that have zero values.
// Port is not defaulted, as it must be explicitly configured.
func (c *APIConfig) SetDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	if c.HoldersCacheTTL == 0 {
		c.HoldersCacheTTL = DefaultHoldersCacheTTL
	}

	if c.ReleasesPerSecond == 0 {
		c.ReleasesPerSecond = DefaultReleasesPerSecond
	}

	if c.ReleaseBurst == 0 {
		c.ReleaseBurst = DefaultReleaseBurst
	}
}

// Validate checks that all required fields are present and all values are
// within acceptable ranges.
func (c *APIConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.RequestTimeout < MinRequestTimeout || c.RequestTimeout > MaxRequestTimeout {
		return fmt.Errorf("request timeout must be between %v and %v, got %v", MinRequestTimeout, MaxRequestTimeout, c.RequestTimeout)
	}

	if c.HoldersCacheTTL < 0 {
		return fmt.Errorf("holders cache TTL cannot be negative, got %v", c.HoldersCacheTTL)
	}

	if c.ReleasesPerSecond <= 0 {
		return fmt.Errorf("releases per second must be positive, got %v", c.ReleasesPerSecond)
	}

	if c.ReleaseBurst < 1 {
		return fmt.Errorf("release burst must be at least 1, got %d", c.ReleaseBurst)
	}

	return nil
}
