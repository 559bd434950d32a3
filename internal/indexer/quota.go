package indexer

import (
	"sync"
	"time"
)

// QuotaLedger serializes work per credential holder. Tasks for the same
// requester share one provider quota window, so at most one of them runs at
// a time, and an exhausted window blocks all of them until it resets.
type QuotaLedger struct {
	mu        sync.Mutex
	running   map[string]bool
	exhausted map[string]time.Time
	now       func() time.Time
}

// NewQuotaLedger creates an empty ledger.
func NewQuotaLedger() *QuotaLedger {
	return &QuotaLedger{
		running:   make(map[string]bool),
		exhausted: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Acquire attempts to claim the requester's quota slot. It fails when
// another task for the same requester is running, or when the requester's
// window is known to be exhausted; the second return value carries the
// reset time in the exhausted case (zero when merely busy).
func (l *QuotaLedger) Acquire(requesterID string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.exhausted[requesterID]; ok {
		if l.now().Before(until) {
			return false, until
		}
		delete(l.exhausted, requesterID)
	}
	if l.running[requesterID] {
		return false, time.Time{}
	}
	l.running[requesterID] = true
	return true, time.Time{}
}

// Release frees the requester's slot.
func (l *QuotaLedger) Release(requesterID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, requesterID)
}

// MarkExhausted records that the requester's quota window is spent until the
// given time. Subsequent Acquire calls fail until then.
func (l *QuotaLedger) MarkExhausted(requesterID string, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.exhausted[requesterID]; !ok || until.After(existing) {
		l.exhausted[requesterID] = until
	}
}
