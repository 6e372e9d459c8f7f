package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Driver selects the backend store used for lock documents and the writer lease.
type Driver string

const (
	// DriverRedis stores lock documents as plain redis keys and takes the
	// writer lease through redislock.
	DriverRedis Driver = "redis"

	// DriverEtcd stores lock documents in etcd and takes the writer lease
	// through an etcd concurrency mutex. This is the driver to use when the
	// fleet already runs an etcd cluster for configuration data.
	DriverEtcd Driver = "etcd"

	// DriverMemory keeps everything in process memory. It provides no
	// cross-process guarantees and exists for tests and single-instance
	// deployments where locking is only needed within one process.
	DriverMemory Driver = "memory"
)

// Validation constants for LockingConfig.
const (
	// DefaultBasePath is the backend path prefix under which all lock
	// documents are stored, as {BasePath}/{prefix}/{name}.
	DefaultBasePath = "/lock-manager/locks"

	// DefaultWriterLeaseKey is the single well-known backend key used for the
	// writer lease that serializes every read-modify-write against the lock
	// documents. It lives outside BasePath so a lease never collides with a
	// lock document.
	DefaultWriterLeaseKey = "/lock-manager/writer"

	// DefaultWriterLeaseTTL is the duration of the writer lease. The lease
	// only needs to outlive one read-modify-write round trip, so it is kept
	// short; a crashed holder blocks all writers for at most this long.
	DefaultWriterLeaseTTL = 15 * time.Second

	// DefaultAcquireRetries and DefaultAcquireRetryDelay bound the retry loop
	// around lock acquisition. With linear backoff (delay * attempt) 27
	// attempts at a 5 second base spread over roughly half an hour, long
	// enough to ride out other holders finishing, short enough that a truly
	// exhausted lock eventually fails.
	DefaultAcquireRetries    = 27
	DefaultAcquireRetryDelay = 5 * time.Second

	// DefaultReleaseRetries and DefaultReleaseRetryDelay bound the retry loop
	// around release. Release is best effort (the TTL expires the record
	// anyway) so the budget is much smaller: 15 attempts at a 1 second base,
	// about 2 minutes.
	DefaultReleaseRetries    = 15
	DefaultReleaseRetryDelay = time.Second

	// MaxWriterLeaseTTL guards against configurations where a crashed lease
	// holder would block all lock writers for minutes.
	MaxWriterLeaseTTL = time.Minute
)

// LockingConfig holds the configuration for the distributed lock coordinator.
//
// When Enabled is false the factory returns a no-op coordinator, so callers can
// keep the same code path whether locking is administratively enabled or not.
type LockingConfig struct {
	// Enabled controls whether locking is active. When false, all lock
	// operations succeed immediately without talking to any backend.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Driver selects the backend store: "redis", "etcd" or "memory".
	Driver Driver `json:"driver" yaml:"driver"`

	// RedisAddr is the host:port of the redis server. Required when Driver is
	// "redis".
	RedisAddr string `json:"redisAddr" yaml:"redisAddr"`

	// RedisUsername and RedisPassword are the optional redis credentials.
	RedisUsername string `json:"redisUsername" yaml:"redisUsername"`
	RedisPassword string `json:"redisPassword" yaml:"redisPassword"`

	// RedisDB is the redis database number to use.
	RedisDB int `json:"redisDb" yaml:"redisDb"`

	// EtcdEndpoints is the list of etcd endpoints. Required when Driver is
	// "etcd".
	EtcdEndpoints []string `json:"etcdEndpoints" yaml:"etcdEndpoints"`

	// EtcdDialTimeout is the timeout for establishing the etcd connection.
	EtcdDialTimeout time.Duration `json:"etcdDialTimeout" yaml:"etcdDialTimeout"`

	// BasePath is the backend path prefix for lock documents. Lock documents
	// are stored at {BasePath}/{prefix}/{name}.
	BasePath string `json:"basePath" yaml:"basePath"`

	// WriterLeaseKey is the backend key for the global writer lease. All
	// coordinators, across all hosts and all lock names, contend on this one
	// key while writing; keep it identical across the fleet.
	WriterLeaseKey string `json:"writerLeaseKey" yaml:"writerLeaseKey"`

	// WriterLeaseTTL is the duration of the writer lease. Default 15 seconds.
	WriterLeaseTTL time.Duration `json:"writerLeaseTtl" yaml:"writerLeaseTtl"`

	// AcquireRetries and AcquireRetryDelay bound the linear-backoff retry loop
	// around lock acquisition. The total budget is roughly
	// AcquireRetryDelay * AcquireRetries * (AcquireRetries+1) / 2.
	AcquireRetries    int           `json:"acquireRetries" yaml:"acquireRetries"`
	AcquireRetryDelay time.Duration `json:"acquireRetryDelay" yaml:"acquireRetryDelay"`

	// ReleaseRetries and ReleaseRetryDelay bound the linear-backoff retry loop
	// around the writer lease during release.
	ReleaseRetries    int           `json:"releaseRetries" yaml:"releaseRetries"`
	ReleaseRetryDelay time.Duration `json:"releaseRetryDelay" yaml:"releaseRetryDelay"`

	// DryRun makes every coordinator built from this config skip backend
	// mutations: the admission decision still runs against live state, but
	// nothing is written and the writer lease is not taken. Dry-run reads are
	// therefore not protected against concurrent real writers; this is an
	// accepted simplification for simulation, not a consistency guarantee.
	DryRun bool `json:"dryRun" yaml:"dryRun"`
}

// NewDefaultLockingConfig returns a LockingConfig with locking enabled, the
// memory driver selected and all tunables at their defaults.
func NewDefaultLockingConfig() *LockingConfig {
	return &LockingConfig{
		Enabled:           true,
		Driver:            DriverMemory,
		EtcdDialTimeout:   5 * time.Second,
		BasePath:          DefaultBasePath,
		WriterLeaseKey:    DefaultWriterLeaseKey,
		WriterLeaseTTL:    DefaultWriterLeaseTTL,
		AcquireRetries:    DefaultAcquireRetries,
		AcquireRetryDelay: DefaultAcquireRetryDelay,
		ReleaseRetries:    DefaultReleaseRetries,
		ReleaseRetryDelay: DefaultReleaseRetryDelay,
	}
}

// SetDefaults sets default values for any fields that have zero values.
// Driver and the driver-specific connection fields are not defaulted, as those
// must be explicitly configured.
func (c *LockingConfig) SetDefaults() {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}

	if c.WriterLeaseKey == "" {
		c.WriterLeaseKey = DefaultWriterLeaseKey
	}

	if c.WriterLeaseTTL == 0 {
		c.WriterLeaseTTL = DefaultWriterLeaseTTL
	}

	if c.EtcdDialTimeout == 0 {
		c.EtcdDialTimeout = 5 * time.Second
	}

	if c.AcquireRetries == 0 {
		c.AcquireRetries = DefaultAcquireRetries
	}

	if c.AcquireRetryDelay == 0 {
		c.AcquireRetryDelay = DefaultAcquireRetryDelay
	}

	if c.ReleaseRetries == 0 {
		c.ReleaseRetries = DefaultReleaseRetries
	}

	if c.ReleaseRetryDelay == 0 {
		c.ReleaseRetryDelay = DefaultReleaseRetryDelay
	}
}

// Validate checks that all required fields are present and consistent with the
// selected driver. A disabled config is always valid.
func (c *LockingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Driver {
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address is required for the redis driver")
		}
	case DriverEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return errors.New("at least one etcd endpoint is required for the etcd driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported locking driver: %q", c.Driver)
	}

	if c.BasePath == "" || !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base path must be an absolute path, got %q", c.BasePath)
	}

	if c.WriterLeaseKey == "" {
		return errors.New("writer lease key is required")
	}

	if strings.HasPrefix(c.WriterLeaseKey, c.BasePath+"/") {
		return fmt.Errorf("writer lease key %q must not live under the base path %q", c.WriterLeaseKey, c.BasePath)
	}

	if c.WriterLeaseTTL <= 0 || c.WriterLeaseTTL > MaxWriterLeaseTTL {
		return fmt.Errorf("writer lease TTL must be between 1s and %v, got %v", MaxWriterLeaseTTL, c.WriterLeaseTTL)
	}

	if c.AcquireRetries < 1 || c.ReleaseRetries < 1 {
		return errors.New("retry counts must be at least 1")
	}

	if c.AcquireRetryDelay <= 0 || c.ReleaseRetryDelay <= 0 {
		return errors.New("retry delays must be positive")
	}

	return nil
}
