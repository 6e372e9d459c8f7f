package locking

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend. It provides the same contract as the
// networked drivers, including writer lease expiry, but no cross-process
// guarantees: it exists for tests and for deployments where all callers live
// in one process.
type MemoryBackend struct {
	mu          sync.Mutex
	data        map[string][]byte
	leaseTTL    time.Duration
	leaseHeld   bool
	leaseExpiry time.Time
}

type memoryWriterLease struct {
	backend *MemoryBackend
	expiry  time.Time
}

func NewMemoryBackend(leaseTTL time.Duration) *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string][]byte),
		leaseTTL: leaseTTL,
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	return stored, nil
}

func (b *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	b.data[key] = stored

	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data, key)

	return nil
}

//nolint:ireturn // implementations of Backend return the interface
func (b *MemoryBackend) AcquireWriterLease(_ context.Context) (WriterLease, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if b.leaseHeld && now.Before(b.leaseExpiry) {
		return nil, ErrWriterLeaseUnavailable
	}

	b.leaseHeld = true
	b.leaseExpiry = now.Add(b.leaseTTL)

	return &memoryWriterLease{backend: b, expiry: b.leaseExpiry}, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

func (l *memoryWriterLease) Release(_ context.Context) error {
	l.backend.mu.Lock()
	defer l.backend.mu.Unlock()

	// Only release the lease this holder still owns; an expired lease may
	// already have been handed to someone else.
	if l.backend.leaseHeld && l.backend.leaseExpiry.Equal(l.expiry) {
		l.backend.leaseHeld = false
	}

	return nil
}
