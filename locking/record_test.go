package locking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peteraglen/lock-manager/locking"
)

func TestNewConcurrentLock(t *testing.T) {
	lock, err := locking.NewConcurrentLock(3, "user@host [123]", 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 3, lock.Concurrency)
	assert.Equal(t, "user@host [123]", lock.Owner)
	assert.Equal(t, 30, lock.TTL)
	assert.NotEmpty(t, lock.ID)
	assert.False(t, lock.Created.After(time.Now().UTC()))
	assert.Equal(t, time.UTC, lock.Created.Location())
}

func TestNewConcurrentLockGeneratesUniqueIDs(t *testing.T) {
	first, err := locking.NewConcurrentLock(1, "owner", time.Minute)
	require.NoError(t, err)

	second, err := locking.NewConcurrentLock(1, "owner", time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestNewConcurrentLockValidation(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		ttl         time.Duration
	}{
		{name: "negative concurrency", concurrency: -1, ttl: time.Minute},
		{name: "zero ttl", concurrency: 1, ttl: 0},
		{name: "negative ttl", concurrency: 1, ttl: -time.Second},
		{name: "sub-second ttl truncates to zero", concurrency: 1, ttl: 500 * time.Millisecond},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lock, err := locking.NewConcurrentLock(tc.concurrency, "owner", tc.ttl)
			require.ErrorIs(t, err, locking.ErrInvalidLock)
			assert.Nil(t, lock)
		})
	}
}

func TestConcurrentLockZeroConcurrencyIsValid(t *testing.T) {
	lock, err := locking.NewConcurrentLock(0, "owner", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, lock.Concurrency)
}

func TestConcurrentLockExpired(t *testing.T) {
	lock, err := locking.NewConcurrentLock(1, "owner", 10*time.Second)
	require.NoError(t, err)

	assert.False(t, lock.Expired(lock.Created.Add(5*time.Second)))
	assert.False(t, lock.Expired(lock.Created.Add(10*time.Second)))
	assert.True(t, lock.Expired(lock.Created.Add(11*time.Second)))
}

func TestConcurrentLockString(t *testing.T) {
	lock, err := locking.NewConcurrentLock(2, "user@host [42]", time.Minute)
	require.NoError(t, err)

	rendered := lock.String()
	assert.Contains(t, rendered, "concurrency: 2")
	assert.Contains(t, rendered, "owner: user@host [42]")
	assert.Contains(t, rendered, "ttl: 60")
	assert.NotContains(t, rendered, lock.ID, "the ID travels as the map key, not inside the record")
}
