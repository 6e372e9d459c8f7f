package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/peteraglen/lock-manager/common"
)

// EtcdBackend stores lock documents in etcd and takes the writer lease through
// an etcd concurrency mutex bound to a short-TTL session. If the lease holder
// crashes, the session lease expires server-side and the mutex is released.
type EtcdBackend struct {
	client   *clientv3.Client
	leaseKey string
	leaseTTL time.Duration
	logger   common.Logger
}

type etcdWriterLease struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
}

func NewEtcdBackend(client *clientv3.Client, leaseKey string, leaseTTL time.Duration, logger common.Logger) *EtcdBackend {
	if logger == nil {
		logger = &common.NoopLogger{}
	}

	return &EtcdBackend{
		client:   client,
		leaseKey: leaseKey,
		leaseTTL: leaseTTL,
		logger:   logger,
	}
}

func (b *EtcdBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("etcd get %s failed: %w", key, err)
	}

	if resp.Count == 0 {
		return nil, ErrKeyNotFound
	}

	return resp.Kvs[0].Value, nil
}

func (b *EtcdBackend) Put(ctx context.Context, key string, value []byte) error {
	if _, err := b.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("etcd put %s failed: %w", key, err)
	}

	return nil
}

func (b *EtcdBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("etcd delete %s failed: %w", key, err)
	}

	return nil
}

// AcquireWriterLease creates a fresh session per lease so the lease TTL is the
// session TTL: no keep-alive outlives the holder. On any failure the queued
// mutex entry and session are cleaned up best effort.
//
//nolint:ireturn // implementations of Backend return the interface
func (b *EtcdBackend) AcquireWriterLease(ctx context.Context) (WriterLease, error) {
	session, err := concurrency.NewSession(b.client, concurrency.WithTTL(int(b.leaseTTL.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	mutex := concurrency.NewMutex(session, b.leaseKey)

	if err := mutex.TryLock(ctx); err != nil {
		b.cleanupFailedLease(ctx, mutex, session)

		if errors.Is(err, concurrency.ErrLocked) {
			return nil, ErrWriterLeaseUnavailable
		}

		return nil, fmt.Errorf("failed to obtain writer lease: %w", err)
	}

	return &etcdWriterLease{mutex: mutex, session: session}, nil
}

// cleanupFailedLease removes whatever partial mutex state a failed TryLock
// left in the lease queue. Failures here only get logged: the session TTL will
// clear the leftovers anyway.
func (b *EtcdBackend) cleanupFailedLease(ctx context.Context, mutex *concurrency.Mutex, session *concurrency.Session) {
	if err := mutex.Unlock(ctx); err != nil {
		b.logger.Warnf("Failed to clean up queued writer lease entry %s: %s", mutex.Key(), err)
	}

	if err := session.Close(); err != nil {
		b.logger.Warnf("Failed to close etcd session for writer lease: %s", err)
	}
}

func (b *EtcdBackend) Close() error {
	return b.client.Close()
}

func (l *etcdWriterLease) Release(ctx context.Context) error {
	unlockErr := l.mutex.Unlock(ctx)

	if err := l.session.Close(); err != nil && unlockErr == nil {
		unlockErr = err
	}

	return unlockErr
}
