package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

// RedisBackend stores lock documents as plain redis string keys and takes the
// writer lease through redislock, which implements a single-holder TTL lease
// on top of SET NX.
type RedisBackend struct {
	client   *redis.Client
	locker   *redislock.Client
	leaseKey string
	leaseTTL time.Duration
}

type redisWriterLease struct {
	lock *redislock.Lock
}

func NewRedisBackend(client *redis.Client, leaseKey string, leaseTTL time.Duration) *RedisBackend {
	return &RedisBackend{
		client:   client,
		locker:   redislock.New(client),
		leaseKey: leaseKey,
		leaseTTL: leaseTTL,
	}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}

		return nil, fmt.Errorf("redis get %s failed: %w", key, err)
	}

	return data, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}

	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s failed: %w", key, err)
	}

	return nil
}

// AcquireWriterLease obtains the lease without retrying: lease contention is
// handled by the coordinator's own backoff, which also covers admission
// contention.
//
//nolint:ireturn // implementations of Backend return the interface
func (b *RedisBackend) AcquireWriterLease(ctx context.Context) (WriterLease, error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.NoRetry(),
	}

	lock, err := b.locker.Obtain(ctx, b.leaseKey, b.leaseTTL, opts)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrWriterLeaseUnavailable
		}

		return nil, fmt.Errorf("failed to obtain writer lease: %w", err)
	}

	return &redisWriterLease{lock: lock}, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (l *redisWriterLease) Release(ctx context.Context) error {
	if l.lock == nil {
		return nil
	}

	// A lease whose TTL has already expired is gone either way.
	if err := l.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}

	l.lock = nil

	return nil
}
