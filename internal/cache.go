package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"

	"github.com/peteraglen/lock-manager/common"
)

type Cache[T any] struct {
	cache     cache.CacheInterface[T]
	keyPrefix string
	logger    common.Logger
}

// NewCache creates a new Cache instance with the provided cache store, key prefix, and logger.
// The key prefix is optional, but may be useful for namespacing cache keys.
func NewCache[T any](cacheStore store.StoreInterface, keyPrefix string, logger common.Logger) *Cache[T] {
	return &Cache[T]{
		cache:     cache.New[T](cacheStore),
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// Get retrieves an item from the cache with the given key.
// If the item is not found, it returns a zero value of type T and false.
// If an error occurs during retrieval, it logs the error and returns a zero value of type T and false.
// Note: The key is prefixed with the cache's keyPrefix.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	key = c.keyPrefix + key

	value, err := c.cache.Get(ctx, key)
	if err != nil {
		if err.Error() == store.NOT_FOUND_ERR {
			return *new(T), false
		}

		c.logger.Errorf("Cache read failed: %s", err)

		return *new(T), false
	}

	return value, true
}

// Set stores an item in the cache with the given key and expiration duration.
// If an error occurs during storage, it logs the error.
// Note: The key is prefixed with the cache's keyPrefix.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, expiration time.Duration) {
	key = c.keyPrefix + key

	if err := c.cache.Set(ctx, key, value, store.WithExpiration(expiration)); err != nil {
		c.logger.Errorf("Cache write failed: %s", err)
	}
}

// Delete removes the item from the cache with the given key.
// This method returns an error if the deletion fails, since an explicit delete is expected to succeed.
// Note: The key is prefixed with the cache's keyPrefix.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	key = c.keyPrefix + key

	if err := c.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}
