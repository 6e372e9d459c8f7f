package locking

import "errors"

// Fatal errors. These are never retried: they indicate invalid input, backend
// data corruption or a logic bug.
var (
	// ErrInvalidLock is returned when the parameters for a lock are invalid:
	// a bad prefix or name, a negative concurrency, a non-positive TTL or an
	// unparseable creation timestamp.
	ErrInvalidLock = errors.New("invalid lock")

	// ErrLockUnreadable is returned when an existing lock document cannot be
	// parsed from the backend.
	ErrLockUnreadable = errors.New("lock document unreadable")

	// ErrLockUnwritable is returned when a lock document cannot be serialized
	// for storage in the backend.
	ErrLockUnwritable = errors.New("lock document unwritable")

	// ErrLockExisting is returned when a lock with the same ID already exists
	// for the given key. IDs are generated uniquely, so hitting this is a
	// uniqueness-generation defect, not normal contention.
	ErrLockExisting = errors.New("lock already exists")
)

// ErrLockUnavailable is returned when the concurrency ceiling for a key has
// been reached. It is retryable: the coordinator retries acquisition with
// bounded backoff before surfacing it to the caller.
var ErrLockUnavailable = errors.New("lock unavailable")

// isRetryableAcquire reports whether an acquisition attempt failed only due to
// transient contention, either on the lock itself or on the writer lease.
func isRetryableAcquire(err error) bool {
	return errors.Is(err, ErrLockUnavailable) || errors.Is(err, ErrWriterLeaseUnavailable)
}

func isWriterLeaseUnavailable(err error) bool {
	return errors.Is(err, ErrWriterLeaseUnavailable)
}
