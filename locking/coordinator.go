package locking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peteraglen/lock-manager/common"
	"github.com/peteraglen/lock-manager/config"
)

// Prefix is the namespace a coordinator files its lock keys under. Only the
// values below are accepted.
type Prefix string

const (
	// PrefixTasks is for locks taken automatically for each top-level task
	// invocation.
	PrefixTasks Prefix = "tasks"

	// PrefixCustom is for locks taken explicitly from inside task code.
	PrefixCustom Prefix = "custom"

	// PrefixModules is for locks taken by internal library modules. Names
	// under this prefix must start with ModuleNamePrefix.
	PrefixModules Prefix = "modules"
)

// ModuleNamePrefix is the marker every lock name under PrefixModules must
// start with.
const ModuleNamePrefix = "lockmgr."

// AllowedPrefixes lists the accepted namespace prefixes.
var AllowedPrefixes = []Prefix{PrefixTasks, PrefixCustom, PrefixModules}

// Coordinator hands out and releases reservations on named lock keys.
//
// Use the lockCoordinator implementation (built by New) for a production
// setup backed by a replicated store, and NoopCoordinator when locking is
// administratively disabled, so callers are written against one contract.
type Coordinator interface {
	// Get returns the existing reservations for the given name. A name with
	// no reservations yields an empty set, not an error.
	Get(ctx context.Context, name string) (*KeyLocks, error)

	// Acquire takes a reservation on name and returns its unique ID.
	// Concurrency is the ceiling this caller requests (zero for unlimited but
	// tracked); ttl is how long the reservation stays valid if never
	// released. Contention is retried with bounded backoff before an error is
	// surfaced.
	Acquire(ctx context.Context, name string, concurrency int, ttl time.Duration) (string, error)

	// Acquired runs fn while holding a reservation on name, releasing it on
	// every exit path.
	Acquired(ctx context.Context, name string, concurrency int, ttl time.Duration, fn func(ctx context.Context) error) error

	// Release returns the reservation with the given ID, best effort. It
	// never fails: any error is logged and swallowed, because the
	// reservation's TTL is the ultimate backstop.
	Release(ctx context.Context, name, id string)

	// Close releases the backend connection owned by this coordinator.
	Close() error
}

type lockCoordinator struct {
	backend  Backend
	prefix   Prefix
	owner    string
	basePath string
	dryRun   bool

	acquireRetries    int
	acquireRetryDelay time.Duration
	releaseRetries    int
	releaseRetryDelay time.Duration

	logger  common.Logger
	metrics common.Metrics
}

// Metric names registered by the coordinator.
const (
	metricAcquires             = "lock_acquire_total"
	metricReleases             = "lock_release_total"
	metricWriterLeaseConflicts = "lock_writer_lease_conflicts_total"
)

func newLockCoordinator(backend Backend, cfg *config.LockingConfig, prefix Prefix, owner string, logger common.Logger, metrics common.Metrics) *lockCoordinator {
	metrics.RegisterCounter(metricAcquires, "Lock acquisition outcomes.", "prefix", "result")
	metrics.RegisterCounter(metricReleases, "Lock release outcomes.", "prefix", "result")
	metrics.RegisterCounter(metricWriterLeaseConflicts, "Writer lease acquisition attempts that found the lease busy.", "prefix")

	return &lockCoordinator{
		backend:           backend,
		prefix:            prefix,
		owner:             owner,
		basePath:          cfg.BasePath,
		dryRun:            cfg.DryRun,
		acquireRetries:    cfg.AcquireRetries,
		acquireRetryDelay: cfg.AcquireRetryDelay,
		releaseRetries:    cfg.ReleaseRetries,
		releaseRetryDelay: cfg.ReleaseRetryDelay,
		logger:            logger,
		metrics:           metrics,
	}
}

func (c *lockCoordinator) Get(ctx context.Context, name string) (*KeyLocks, error) {
	key, err := c.key(name)
	if err != nil {
		return nil, err
	}

	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return NewKeyLocks(key, c.logger), nil
		}

		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return KeyLocksFromJSON(key, data, c.logger)
}

func (c *lockCoordinator) Acquire(ctx context.Context, name string, concurrency int, ttl time.Duration) (string, error) {
	lock, err := NewConcurrentLock(concurrency, c.owner, ttl)
	if err != nil {
		return "", err
	}

	if _, err := c.key(name); err != nil {
		return "", err
	}

	c.logger.Debugf("Acquiring lock for key %s: %s", name, lock)

	err = retryWithBackoff(ctx, c.acquireRetries, c.acquireRetryDelay, isRetryableAcquire, c.logger, "Unable to acquire lock", func() error {
		return c.protectedUpdate(ctx, func(keyLocks *KeyLocks) error {
			if err := keyLocks.Add(lock); err != nil {
				return err
			}

			if err := c.persist(ctx, keyLocks); err != nil {
				return err
			}

			c.logger.Infof("Acquired lock for key %s: %s", keyLocks.Key, lock)

			return nil
		}, name)
	})
	if err != nil {
		c.metrics.AddToCounter(metricAcquires, 1, string(c.prefix), acquireResult(err))
		return "", err
	}

	c.metrics.AddToCounter(metricAcquires, 1, string(c.prefix), "acquired")

	return lock.ID, nil
}

func (c *lockCoordinator) Acquired(ctx context.Context, name string, concurrency int, ttl time.Duration, fn func(ctx context.Context) error) error {
	id, err := c.Acquire(ctx, name, concurrency, ttl)
	if err != nil {
		return err
	}

	defer c.Release(ctx, name, id)

	return fn(ctx)
}

func (c *lockCoordinator) Release(ctx context.Context, name, id string) {
	c.logger.Debugf("Releasing lock for key %s with ID %s", name, id)

	var released bool

	err := retryWithBackoff(ctx, c.releaseRetries, c.releaseRetryDelay, isWriterLeaseUnavailable, c.logger, "Unable to acquire writer lease for release", func() error {
		return c.protectedUpdate(ctx, func(keyLocks *KeyLocks) error {
			lock := keyLocks.Remove(id)
			if lock == nil {
				return nil
			}

			if err := c.persist(ctx, keyLocks); err != nil {
				return err
			}

			released = true
			c.logger.Infof("Released lock for key %s: %s", keyLocks.Key, lock)

			return nil
		}, name)
	})
	if err != nil {
		// Never propagate: the reservation expires via its TTL regardless.
		c.metrics.AddToCounter(metricReleases, 1, string(c.prefix), "error")
		c.logger.Errorf("Failed to release lock for key %s and ID %s: %s", name, id, err)

		return
	}

	if released {
		c.metrics.AddToCounter(metricReleases, 1, string(c.prefix), "released")
	} else {
		c.metrics.AddToCounter(metricReleases, 1, string(c.prefix), "not_found")
	}
}

func (c *lockCoordinator) Close() error {
	return c.backend.Close()
}

// protectedUpdate runs one read-modify-write sequence against the document for
// name while holding the global writer lease. The lease is released on every
// exit path. In dry-run mode the lease is skipped entirely and the body runs
// against a live read, trading consistency for zero side effects.
func (c *lockCoordinator) protectedUpdate(ctx context.Context, update func(*KeyLocks) error, name string) error {
	if !c.dryRun {
		lease, err := c.backend.AcquireWriterLease(ctx)
		if err != nil {
			if errors.Is(err, ErrWriterLeaseUnavailable) {
				c.metrics.AddToCounter(metricWriterLeaseConflicts, 1, string(c.prefix))
				return err
			}

			return fmt.Errorf("failed to acquire writer lease: %w", err)
		}

		defer func() {
			if err := lease.Release(ctx); err != nil {
				c.logger.Warnf("Failed to release writer lease: %s", err)
			}
		}()
	}

	keyLocks, err := c.Get(ctx, name)
	if err != nil {
		return err
	}

	return update(keyLocks)
}

// persist writes the set back to the backend: non-empty sets are stored as
// JSON, an empty set deletes the path so the store stays free of stale empty
// documents.
func (c *lockCoordinator) persist(ctx context.Context, keyLocks *KeyLocks) error {
	if c.dryRun {
		c.logger.Info("Skipping lock write in dry-run mode")
		return nil
	}

	if len(keyLocks.Locks) == 0 {
		if err := c.backend.Delete(ctx, keyLocks.Key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", keyLocks.Key, err)
		}

		return nil
	}

	data, err := keyLocks.ToJSON()
	if err != nil {
		return err
	}

	if err := c.backend.Put(ctx, keyLocks.Key, data); err != nil {
		return fmt.Errorf("failed to set key %s: %w", keyLocks.Key, err)
	}

	return nil
}

// key maps a lock name to its backend path, validating the name. Names under
// PrefixModules must carry the module marker so library locks cannot collide
// with task locks.
func (c *lockCoordinator) key(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: the lock name cannot be empty", ErrInvalidLock)
	}

	if strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: the lock name cannot contain '/', got: %s", ErrInvalidLock, name)
	}

	if c.prefix == PrefixModules && !strings.HasPrefix(name, ModuleNamePrefix) {
		return "", fmt.Errorf("%w: locks with prefix %q must have names starting with %q, got: %s",
			ErrInvalidLock, PrefixModules, ModuleNamePrefix, name)
	}

	return c.basePath + "/" + string(c.prefix) + "/" + name, nil
}

func acquireResult(err error) string {
	switch {
	case errors.Is(err, ErrLockUnavailable):
		return "unavailable"
	case errors.Is(err, ErrWriterLeaseUnavailable):
		return "lease_unavailable"
	case errors.Is(err, ErrLockExisting):
		return "existing"
	default:
		return "error"
	}
}
