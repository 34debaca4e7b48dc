package service

import (
	"sync"
	"time"
)

// CooldownTracker suppresses repeated alerts/containment for the same
// pattern+subject key inside a suppression window. State is process-local
// and ephemeral on purpose: containment actions are idempotent upserts, so a
// restart at worst repeats one action and never misses an ongoing attack.
// The ledger, not this map, is authoritative for pattern counts.
type CooldownTracker struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	window     time.Duration
	maxEntries int
	now        func() time.Time
}

// NewCooldownTracker creates a tracker with the given suppression window.
// maxEntries bounds the map; when exceeded, stale entries are swept.
func NewCooldownTracker(window time.Duration, maxEntries int) *CooldownTracker {
	if maxEntries < 1 {
		maxEntries = 4096
	}
	return &CooldownTracker{
		entries:    make(map[string]time.Time),
		window:     window,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Allow reports whether an action for key may fire. Permitting records the
// trigger time; a suppressed call leaves the recorded time untouched, so the
// window is measured from the last permitted trigger.
func (t *CooldownTracker) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.entries[key]; ok && now.Sub(last) < t.window {
		return false
	}

	if len(t.entries) >= t.maxEntries {
		t.sweepLocked(now)
	}
	t.entries[key] = now
	return true
}

// Len returns the number of tracked keys
func (t *CooldownTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// sweepLocked drops entries whose window has elapsed. Caller holds mu.
func (t *CooldownTracker) sweepLocked(now time.Time) {
	for k, last := range t.entries {
		if now.Sub(last) >= t.window {
			delete(t.entries, k)
		}
	}
}
