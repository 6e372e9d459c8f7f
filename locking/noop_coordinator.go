package locking

import (
	"context"
	"time"

	"github.com/peteraglen/lock-manager/common"
)

// NoopCoordinator is a no-op implementation of the Coordinator interface, used
// when locking is administratively disabled. Every operation succeeds without
// touching any backend, so callers keep a single code path.
type NoopCoordinator struct{}

// Get returns an empty reservation set for the given name.
func (n *NoopCoordinator) Get(_ context.Context, name string) (*KeyLocks, error) {
	return NewKeyLocks(name, &common.NoopLogger{}), nil
}

// Acquire returns an empty reservation ID without acquiring anything.
func (n *NoopCoordinator) Acquire(_ context.Context, _ string, _ int, _ time.Duration) (string, error) {
	return "", nil
}

// Acquired just runs fn.
func (n *NoopCoordinator) Acquired(ctx context.Context, _ string, _ int, _ time.Duration, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Release does nothing.
func (n *NoopCoordinator) Release(_ context.Context, _, _ string) {}

// Close does nothing.
func (n *NoopCoordinator) Close() error {
	return nil
}
