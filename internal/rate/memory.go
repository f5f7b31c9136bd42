package rate

import (
	"context"
	"sync"
	"time"
)

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-process Ledger guarded by one mutex.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string][]time.Time)}
}

// Record prunes, counts and conditionally appends under the ledger lock.
func (m *MemoryLedger) Record(_ context.Context, identifier string, now time.Time, window time.Duration, max int) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	kept := m.entries[identifier][:0]
	for _, at := range m.entries[identifier] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= max {
		m.entries[identifier] = kept
		d := Decision{Allowed: false, Count: len(kept)}
		if len(kept) > 0 {
			d.Oldest = kept[0]
		}
		return d, nil
	}

	kept = append(kept, now)
	m.entries[identifier] = kept
	return Decision{Allowed: true, Count: len(kept), Oldest: kept[0]}, nil
}

// Len reports the entries held for identifier, pruned or not.
func (m *MemoryLedger) Len(identifier string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[identifier])
}
