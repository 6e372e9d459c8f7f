package locking

import (
	"fmt"
	"os"
	"os/user"

	redis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/peteraglen/lock-manager/common"
	"github.com/peteraglen/lock-manager/config"
)

// Option configures the coordinator returned by New.
type Option func(*options)

type options struct {
	logger  common.Logger
	metrics common.Metrics
	backend Backend
}

// WithLogger sets the logger used by the coordinator.
func WithLogger(logger common.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink used by the coordinator.
func WithMetrics(metrics common.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithBackend injects a pre-built backend, bypassing the driver selection in
// the config. The coordinator takes ownership and closes it on Close.
func WithBackend(backend Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// New returns the lock coordinator for the given namespace prefix.
//
// The prefix must be one of AllowedPrefixes; anything else is rejected here
// rather than on first use. When cfg is nil or locking is disabled, a
// NoopCoordinator is returned so callers keep the same code path. An empty
// owner defaults to DefaultOwner().
//
//nolint:ireturn // the factory deliberately returns the Coordinator interface
func New(cfg *config.LockingConfig, prefix Prefix, owner string, opts ...Option) (Coordinator, error) {
	if !prefixAllowed(prefix) {
		return nil, fmt.Errorf("%w: invalid prefix %q, must be one of: %v", ErrInvalidLock, prefix, AllowedPrefixes)
	}

	if cfg == nil || !cfg.Enabled {
		return &NoopCoordinator{}, nil
	}

	opt := options{
		logger:  &common.NoopLogger{},
		metrics: &common.NoopMetrics{},
	}

	for _, o := range opts {
		o(&opt)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid locking configuration: %w", err)
	}

	if owner == "" {
		owner = DefaultOwner()
	}

	backend := opt.backend

	if backend == nil {
		var err error

		backend, err = newBackend(cfg, opt.logger)
		if err != nil {
			return nil, err
		}
	}

	return newLockCoordinator(backend, cfg, prefix, owner, opt.logger, opt.metrics), nil
}

//nolint:ireturn // driver selection returns the Backend interface
func newBackend(cfg *config.LockingConfig, logger common.Logger) (Backend, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		return NewRedisBackend(client, cfg.WriterLeaseKey, cfg.WriterLeaseTTL), nil
	case config.DriverEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: cfg.EtcdDialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd client: %w", err)
		}

		return NewEtcdBackend(client, cfg.WriterLeaseKey, cfg.WriterLeaseTTL, logger), nil
	case config.DriverMemory:
		return NewMemoryBackend(cfg.WriterLeaseTTL), nil
	default:
		return nil, fmt.Errorf("unsupported locking driver: %q", cfg.Driver)
	}
}

// DefaultOwner identifies this process as "user@host [pid]".
func DefaultOwner() string {
	username := os.Getenv("USER")

	if current, err := user.Current(); err == nil && current.Username != "" {
		username = current.Username
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return fmt.Sprintf("%s@%s [%d]", username, hostname, os.Getpid())
}

func prefixAllowed(prefix Prefix) bool {
	for _, allowed := range AllowedPrefixes {
		if prefix == allowed {
			return true
		}
	}

	return false
}
