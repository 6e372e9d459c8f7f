package locking

import (
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// Timestamp layouts for the created field of the wire format. Documents are
// written with microsecond precision; parsing also accepts plain seconds and
// the space-separated form, which other writers of these documents still emit
// for their own reservations.
const (
	createdLayout = "2006-01-02T15:04:05.999999"

	createdLayoutSpaced = "2006-01-02 15:04:05.999999"
)

// ConcurrentLock is a single reservation on a lock key: who holds it, how many
// concurrent holders the owner is willing to share the key with, and for how
// long the reservation stays valid.
//
// Instances are created through NewConcurrentLock and validated there; a
// ConcurrentLock that exists has passed validation. Fields are not mutated
// after insertion into a KeyLocks.
type ConcurrentLock struct {
	// Concurrency is how many concurrent holders are allowed for the same
	// key. Zero means unlimited: holders are tracked but never block each
	// other.
	Concurrency int

	// Owner identifies the holder, usually in the form "user@host [pid]".
	Owner string

	// TTL is the reservation lifetime in seconds. A lock whose TTL has passed
	// is expired and will be evicted on the next admission for its key.
	TTL int

	// ID is the unique identifier of this reservation. In the wire format it
	// is the key under which the record is filed, not a field of the record.
	ID string

	// Created is the UTC creation time, stamped when the lock is admitted.
	Created time.Time
}

// NewConcurrentLock builds a validated reservation with a fresh unique ID and
// the current time as creation time. The TTL is truncated to whole seconds.
func NewConcurrentLock(concurrency int, owner string, ttl time.Duration) (*ConcurrentLock, error) {
	lock := &ConcurrentLock{
		Concurrency: concurrency,
		Owner:       owner,
		TTL:         int(ttl.Seconds()),
		ID:          ksuid.New().String(),
		Created:     utcNow(),
	}

	if err := lock.validate(); err != nil {
		return nil, err
	}

	return lock, nil
}

func (l *ConcurrentLock) validate() error {
	if l.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must be a non-negative integer, got %d", ErrInvalidLock, l.Concurrency)
	}

	if l.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be a positive number of seconds, got %d", ErrInvalidLock, l.TTL)
	}

	if l.Created.After(utcNow()) {
		return fmt.Errorf("%w: created cannot be in the future, got %s", ErrInvalidLock, l.Created.Format(createdLayout))
	}

	return nil
}

// Expired reports whether the reservation's TTL had passed at the given time.
func (l *ConcurrentLock) Expired(at time.Time) bool {
	return l.Created.Add(time.Duration(l.TTL) * time.Second).Before(at)
}

// refreshCreated stamps the creation time to now. Called on admission, so the
// TTL counts from when the lock was actually granted, not from when the
// request was built.
func (l *ConcurrentLock) refreshCreated() {
	l.Created = utcNow()
}

func (l *ConcurrentLock) String() string {
	return fmt.Sprintf("{concurrency: %d, created: %s, owner: %s, ttl: %d}",
		l.Concurrency, l.Created.Format(createdLayout), l.Owner, l.TTL)
}

// lockPayload is the wire form of a single reservation. The ID is carried as
// the enclosing map key, not as a field.
type lockPayload struct {
	Concurrency int    `json:"concurrency"`
	Created     string `json:"created"`
	Owner       string `json:"owner"`
	TTL         int    `json:"ttl"`
}

func (l *ConcurrentLock) toPayload() lockPayload {
	return lockPayload{
		Concurrency: l.Concurrency,
		Created:     l.Created.Format(createdLayout),
		Owner:       l.Owner,
		TTL:         l.TTL,
	}
}

// lockFromPayload rebuilds a reservation from its wire form and the map key it
// was filed under.
func lockFromPayload(id string, payload lockPayload) (*ConcurrentLock, error) {
	created, err := parseCreated(payload.Created)
	if err != nil {
		return nil, fmt.Errorf("%w: created cannot be parsed as a timestamp, got %q", ErrInvalidLock, payload.Created)
	}

	lock := &ConcurrentLock{
		Concurrency: payload.Concurrency,
		Owner:       payload.Owner,
		TTL:         payload.TTL,
		ID:          id,
		Created:     created,
	}

	if err := lock.validate(); err != nil {
		return nil, err
	}

	return lock, nil
}

func parseCreated(value string) (time.Time, error) {
	created, err := time.ParseInLocation(createdLayout, value, time.UTC)
	if err == nil {
		return created, nil
	}

	return time.ParseInLocation(createdLayoutSpaced, value, time.UTC)
}

// utcNow returns the current UTC time truncated to microseconds, the precision
// of the wire format. Truncating here keeps a round trip through the backend
// equal to the original value.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
