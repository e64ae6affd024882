package engine

import (
	"context"
	"sync"
	"time"
)

// CooldownTracker records, per rule identity, the timestamp of the last
// notification fired. Implementations must be read-after-write consistent
// within an evaluation pass and safe for concurrent use.
//
// Entries never expire on their own; they are superseded by newer writes.
type CooldownTracker interface {
	// LastFired returns the last-fired timestamp for an identity,
	// and whether a record exists
	LastFired(ctx context.Context, identity string) (time.Time, bool, error)

	// RecordFired records the firing timestamp for an identity
	RecordFired(ctx context.Context, identity string, firedAt time.Time) error
}

// MemoryCooldownTracker is an in-memory CooldownTracker. State is lost on
// restart; the accepted worst case is one duplicate notification per rule
// after a restart.
type MemoryCooldownTracker struct {
	mu        sync.RWMutex
	lastFired map[string]time.Time
}

// NewMemoryCooldownTracker creates a new in-memory cooldown tracker
func NewMemoryCooldownTracker() *MemoryCooldownTracker {
	return &MemoryCooldownTracker{
		lastFired: make(map[string]time.Time),
	}
}

// LastFired returns the last-fired timestamp for an identity
func (t *MemoryCooldownTracker) LastFired(ctx context.Context, identity string) (time.Time, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	firedAt, ok := t.lastFired[identity]
	return firedAt, ok, nil
}

// RecordFired records the firing timestamp for an identity
func (t *MemoryCooldownTracker) RecordFired(ctx context.Context, identity string, firedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastFired[identity] = firedAt
	return nil
}

// Count returns the number of tracked identities
func (t *MemoryCooldownTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastFired)
}

// Clear removes all cooldown records (useful for testing)
func (t *MemoryCooldownTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFired = make(map[string]time.Time)
}
