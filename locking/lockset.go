package locking

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/peteraglen/lock-manager/common"
)

// KeyLocks is the set of all current reservations for one lock key.
//
// It holds the pure admission logic: expiry eviction, concurrency-limit
// enforcement and duplicate-ID rejection. It performs no I/O; the coordinator
// loads it from the backend, mutates it and persists it back under the writer
// lease.
type KeyLocks struct {
	// Key is the full backend path this set is stored at.
	Key string

	// Locks maps reservation ID to reservation.
	Locks map[string]*ConcurrentLock

	logger common.Logger
}

// NewKeyLocks returns an empty set for the given key.
func NewKeyLocks(key string, logger common.Logger) *KeyLocks {
	if logger == nil {
		logger = &common.NoopLogger{}
	}

	return &KeyLocks{
		Key:    key,
		Locks:  make(map[string]*ConcurrentLock),
		logger: logger,
	}
}

// KeyLocksFromJSON parses a lock document read from the backend.
// It returns ErrLockUnreadable if the document is not valid JSON and
// ErrInvalidLock if a record inside it cannot be rebuilt.
func KeyLocksFromJSON(key string, data []byte, logger common.Logger) (*KeyLocks, error) {
	payloads := map[string]lockPayload{}

	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("%w: unable to decode the lock document for key %s: %s", ErrLockUnreadable, key, err)
	}

	keyLocks := NewKeyLocks(key, logger)

	for id, payload := range payloads {
		lock, err := lockFromPayload(id, payload)
		if err != nil {
			return nil, err
		}

		keyLocks.Locks[id] = lock
	}

	return keyLocks, nil
}

// ToJSON serializes the set into the wire format: a JSON object mapping
// reservation IDs to records.
func (k *KeyLocks) ToJSON() ([]byte, error) {
	payloads := make(map[string]lockPayload, len(k.Locks))

	for _, lock := range k.Locks {
		payloads[lock.ID] = lock.toPayload()
	}

	data, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to encode the lock document for key %s: %s", ErrLockUnwritable, k.Key, err)
	}

	return data, nil
}

// Add admits the candidate reservation if all criteria are met, stamping its
// creation time on success.
//
// The admission runs in a fixed order:
//
//  1. Every stored reservation is scanned once. Expired ones are marked for
//     eviction; live ones whose own concurrency limit is already met by the
//     current count are remembered as blocking, keeping the smallest limit.
//  2. If any reservation blocks, the candidate is rejected with
//     ErrLockUnavailable listing the current holders. This check deliberately
//     runs against the pre-eviction count, so a key that is full according to
//     an existing holder's limit is rejected even if some holders are stale:
//     conservative rejection with visible holders beats eagerly granting on
//     every call.
//  3. Marked reservations are evicted.
//  4. A duplicate candidate ID is rejected with ErrLockExisting.
//  5. The candidate's own limit is checked against the post-eviction count
//     and rejected with ErrLockUnavailable when met.
func (k *KeyLocks) Add(candidate *ConcurrentLock) error {
	now := utcNow()

	var expiredIDs []string

	var blocking *ConcurrentLock

	for _, other := range k.Locks {
		if other.Expired(now) {
			expiredIDs = append(expiredIDs, other.ID)
			continue
		}

		if other.Concurrency != 0 && len(k.Locks) >= other.Concurrency && (blocking == nil || other.Concurrency < blocking.Concurrency) {
			blocking = other
		}
	}

	if blocking != nil {
		return fmt.Errorf("%w: cannot acquire %s for key %s: there are already %d concurrent locks and the concurrency allowed is %d:\n%s",
			ErrLockUnavailable, candidate, k.Key, len(k.Locks), blocking.Concurrency, k.describeHolders())
	}

	for _, expiredID := range expiredIDs {
		expired := k.Locks[expiredID]
		delete(k.Locks, expiredID)
		k.logger.Infof("Releasing expired lock for key %s: %s", k.Key, expired)
	}

	if existing, ok := k.Locks[candidate.ID]; ok {
		return fmt.Errorf("%w: cannot acquire %s for key %s: a lock with the same ID %s already exists: %s",
			ErrLockExisting, candidate, k.Key, candidate.ID, existing)
	}

	if candidate.Concurrency != 0 && len(k.Locks) >= candidate.Concurrency {
		return fmt.Errorf("%w: cannot acquire %s for key %s: there are already %d concurrent locks and a concurrency of %d was requested:\n%s",
			ErrLockUnavailable, candidate, k.Key, len(k.Locks), candidate.Concurrency, k.describeHolders())
	}

	candidate.refreshCreated()
	k.Locks[candidate.ID] = candidate

	return nil
}

// Remove pops and returns the reservation with the given ID. A missing ID is
// not an error: the reservation may simply have expired and been evicted, so
// it is logged as a warning and nil is returned, meaning the backend does not
// need to be updated.
func (k *KeyLocks) Remove(id string) *ConcurrentLock {
	lock, ok := k.Locks[id]
	if !ok {
		k.logger.Warnf("Lock for key %s and ID %s not found. Unable to release it. Was expired?", k.Key, id)
		return nil
	}

	delete(k.Locks, id)

	return lock
}

// describeHolders renders the current holders, one per line, for rejection
// messages so operators can see who is in the way.
func (k *KeyLocks) describeHolders() string {
	lines := make([]string, 0, len(k.Locks))

	for _, lock := range k.Locks {
		lines = append(lines, fmt.Sprintf("    %s: %s", lock.Created.Format(createdLayout), lock.Owner))
	}

	sort.Strings(lines)

	return strings.Join(lines, "\n")
}
