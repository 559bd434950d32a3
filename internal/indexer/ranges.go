package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/graph"
)

// RangeTracker maintains each account's contiguous window of indexed post
// IDs on top of the graph store. Seed, ExtendOlder and ExtendNewer are the
// only mutators: the window monotonically widens and is never overwritten.
//
// Updates for the same account are serialized with a per-account mutex so
// concurrent widens cannot lose each other; different accounts proceed in
// parallel.
type RangeTracker struct {
	store graph.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRangeTracker creates a RangeTracker over the given graph store.
func NewRangeTracker(store graph.Store) *RangeTracker {
	return &RangeTracker{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing updates for one account.
func (t *RangeTracker) accountLock(accountID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[accountID] = lock
	}
	return lock
}

// Get returns the account's indexed window. The second return value is false
// while the account is unindexed.
func (t *RangeTracker) Get(ctx context.Context, accountID string) (domain.IndexedRange, bool, error) {
	return t.store.AccountRange(ctx, accountID)
}

// Seed records both bounds of a freshly indexed batch in a single update.
// It starts the window at {oldestID, newestID} for an unindexed account; a
// one-post batch yields a degenerate window where both bounds are equal. When
// a window already exists the batch is merged into it, widening each side
// only if the batch reaches past it. Returns ErrInvariantViolation if
// oldestID sorts after newestID.
func (t *RangeTracker) Seed(
	ctx context.Context,
	accountID, oldestID, newestID string,
) (domain.IndexedRange, error) {
	if oldestID == "" || newestID == "" {
		return domain.IndexedRange{}, t.invariant(accountID, domain.ErrEmptyPostID)
	}
	if domain.ComparePostIDs(oldestID, newestID) > 0 {
		return domain.IndexedRange{}, fmt.Errorf(
			"%w: account %s: seed bounds inverted (%s > %s)",
			ErrInvariantViolation, accountID, oldestID, newestID,
		)
	}

	lock := t.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	r, ok, err := t.store.AccountRange(ctx, accountID)
	if err != nil {
		return domain.IndexedRange{}, err
	}

	if !ok {
		r = domain.IndexedRange{OldestID: oldestID, NewestID: newestID}
	} else {
		if domain.ComparePostIDs(oldestID, r.OldestID) < 0 {
			r.OldestID = oldestID
		}
		if domain.ComparePostIDs(newestID, r.NewestID) > 0 {
			r.NewestID = newestID
		}
	}

	if err := t.store.SetAccountRange(ctx, accountID, r); err != nil {
		return domain.IndexedRange{}, err
	}

	return r, nil
}

// ExtendOlder widens the account's window downward to boundaryID, or starts
// the window at {boundaryID, boundaryID} when the account is unindexed.
// Returns ErrInvariantViolation if boundaryID is not strictly older than the
// current oldest seen ID.
func (t *RangeTracker) ExtendOlder(
	ctx context.Context,
	accountID, boundaryID string,
) (domain.IndexedRange, error) {
	lock := t.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	r, ok, err := t.store.AccountRange(ctx, accountID)
	if err != nil {
		return domain.IndexedRange{}, err
	}

	if !ok {
		r = domain.IndexedRange{OldestID: boundaryID, NewestID: boundaryID}
	} else if err := r.ExtendOlder(boundaryID); err != nil {
		return domain.IndexedRange{}, t.invariant(accountID, err)
	}

	if err := t.store.SetAccountRange(ctx, accountID, r); err != nil {
		return domain.IndexedRange{}, err
	}

	return r, nil
}

// ExtendNewer widens the account's window upward to boundaryID, or starts
// the window at {boundaryID, boundaryID} when the account is unindexed.
// Returns ErrInvariantViolation if boundaryID is not strictly newer than the
// current newest seen ID.
func (t *RangeTracker) ExtendNewer(
	ctx context.Context,
	accountID, boundaryID string,
) (domain.IndexedRange, error) {
	lock := t.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	r, ok, err := t.store.AccountRange(ctx, accountID)
	if err != nil {
		return domain.IndexedRange{}, err
	}

	if !ok {
		r = domain.IndexedRange{OldestID: boundaryID, NewestID: boundaryID}
	} else if err := r.ExtendNewer(boundaryID); err != nil {
		return domain.IndexedRange{}, t.invariant(accountID, err)
	}

	if err := t.store.SetAccountRange(ctx, accountID, r); err != nil {
		return domain.IndexedRange{}, err
	}

	return r, nil
}

// invariant wraps a domain range error as an invariant violation.
func (t *RangeTracker) invariant(accountID string, err error) error {
	if errors.Is(err, domain.ErrRangeNotOlder) || errors.Is(err, domain.ErrRangeNotNewer) ||
		errors.Is(err, domain.ErrEmptyPostID) {
		return fmt.Errorf("%w: account %s: %v", ErrInvariantViolation, accountID, err)
	}
	return err
}
