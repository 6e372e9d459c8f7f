package locking

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Backend.Get when no document exists at the
// requested path. The coordinator treats it as "no current holders".
var ErrKeyNotFound = errors.New("key not found")

// ErrWriterLeaseUnavailable is returned when the writer lease is currently
// held by another coordinator. It is retryable: lease holders only keep it for
// one read-modify-write round trip.
var ErrWriterLeaseUnavailable = errors.New("writer lease unavailable")

// Backend is the narrow contract the coordinator needs from the replicated
// key-value store: a path-keyed document store plus a named, lease-based
// distributed mutex. The store's replication and consensus guarantees are its
// own business; this package only relies on the lease being exclusive.
type Backend interface {
	// Get returns the document stored at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores the document at key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the document at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// AcquireWriterLease takes the global writer lease without blocking. If
	// the lease is held elsewhere it returns ErrWriterLeaseUnavailable
	// immediately. The lease expires on its own after the configured TTL if
	// the holder crashes before releasing it.
	AcquireWriterLease(ctx context.Context) (WriterLease, error)

	// Close releases the backend connection.
	Close() error
}

// WriterLease is a held writer lease. Release returns the lease before its
// TTL expires; implementations treat releasing an already-expired lease as a
// no-op.
type WriterLease interface {
	Release(ctx context.Context) error
}
