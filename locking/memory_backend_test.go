package locking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peteraglen/lock-manager/locking"
)

func TestMemoryBackendGetPutDelete(t *testing.T) {
	backend := locking.NewMemoryBackend(time.Second)
	ctx := context.Background()

	_, err := backend.Get(ctx, "missing")
	require.ErrorIs(t, err, locking.ErrKeyNotFound)

	require.NoError(t, backend.Put(ctx, "key", []byte("value")))

	data, err := backend.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)

	require.NoError(t, backend.Delete(ctx, "key"))

	_, err = backend.Get(ctx, "key")
	require.ErrorIs(t, err, locking.ErrKeyNotFound)
}

func TestMemoryBackendGetReturnsCopy(t *testing.T) {
	backend := locking.NewMemoryBackend(time.Second)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "key", []byte("value")))

	data, err := backend.Get(ctx, "key")
	require.NoError(t, err)

	data[0] = 'X'

	fresh, err := backend.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), fresh)
}

func TestMemoryBackendWriterLeaseIsExclusive(t *testing.T) {
	backend := locking.NewMemoryBackend(time.Minute)
	ctx := context.Background()

	lease, err := backend.AcquireWriterLease(ctx)
	require.NoError(t, err)

	_, err = backend.AcquireWriterLease(ctx)
	require.ErrorIs(t, err, locking.ErrWriterLeaseUnavailable)

	require.NoError(t, lease.Release(ctx))

	next, err := backend.AcquireWriterLease(ctx)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}

func TestMemoryBackendWriterLeaseExpires(t *testing.T) {
	backend := locking.NewMemoryBackend(20 * time.Millisecond)
	ctx := context.Background()

	stale, err := backend.AcquireWriterLease(ctx)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// The expired lease no longer blocks a new holder.
	fresh, err := backend.AcquireWriterLease(ctx)
	require.NoError(t, err)

	// The stale holder releasing late must not free the lease out from under
	// the new holder.
	require.NoError(t, stale.Release(ctx))

	_, err = backend.AcquireWriterLease(ctx)
	require.ErrorIs(t, err, locking.ErrWriterLeaseUnavailable)

	require.NoError(t, fresh.Release(ctx))
}
