//go:build integration

package locking_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/peteraglen/lock-manager/common"
	"github.com/peteraglen/lock-manager/locking"
)

// Needs a reachable etcd; point ETCD_ENDPOINTS at it (default localhost:2379)
// and run with -tags integration.
func newEtcdBackend(t *testing.T) *locking.EtcdBackend {
	t.Helper()

	endpoints := []string{"localhost:2379"}
	if env := os.Getenv("ETCD_ENDPOINTS"); env != "" {
		endpoints = strings.Split(env, ",")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	backend := locking.NewEtcdBackend(client, "/lock-manager-test/writer", 15*time.Second, &common.NoopLogger{})
	t.Cleanup(func() { _ = backend.Close() })

	return backend
}

func TestEtcdBackendGetPutDelete(t *testing.T) {
	backend := newEtcdBackend(t)
	ctx := context.Background()
	key := "/lock-manager-test/locks/tasks/build-x"

	t.Cleanup(func() { _ = backend.Delete(context.Background(), key) })

	_, err := backend.Get(ctx, key)
	require.ErrorIs(t, err, locking.ErrKeyNotFound)

	require.NoError(t, backend.Put(ctx, key, []byte(`{"a":1}`)))

	data, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)

	require.NoError(t, backend.Delete(ctx, key))

	_, err = backend.Get(ctx, key)
	require.ErrorIs(t, err, locking.ErrKeyNotFound)
}

func TestEtcdBackendWriterLeaseIsExclusive(t *testing.T) {
	backend := newEtcdBackend(t)
	other := newEtcdBackend(t)
	ctx := context.Background()

	lease, err := backend.AcquireWriterLease(ctx)
	require.NoError(t, err)

	_, err = other.AcquireWriterLease(ctx)
	require.ErrorIs(t, err, locking.ErrWriterLeaseUnavailable)

	require.NoError(t, lease.Release(ctx))

	next, err := other.AcquireWriterLease(ctx)
	require.NoError(t, err)
	require.NoError(t, next.Release(ctx))
}

func TestCoordinatorOnEtcdBackend(t *testing.T) {
	backend := newEtcdBackend(t)

	cfg := newTestConfig()
	cfg.BasePath = "/lock-manager-test/locks"

	coordinator, err := locking.New(cfg, locking.PrefixTasks, "owner@host [1]", locking.WithBackend(backend))
	require.NoError(t, err)

	id, err := coordinator.Acquire(context.Background(), "build-x", 1, time.Minute)
	require.NoError(t, err)

	keyLocks, err := coordinator.Get(context.Background(), "build-x")
	require.NoError(t, err)
	require.Contains(t, keyLocks.Locks, id)

	coordinator.Release(context.Background(), "build-x", id)

	keyLocks, err = coordinator.Get(context.Background(), "build-x")
	require.NoError(t, err)
	assert.Empty(t, keyLocks.Locks)
}
