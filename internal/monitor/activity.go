package monitor

import (
	"sync"

	"triggerpay/internal/model"
)

// DefaultActivityCapacity bounds the recent-activity log.
const DefaultActivityCapacity = 50

// Activity is a bounded, newest-first log of per-trigger outcomes.
type Activity struct {
	mu      sync.Mutex
	entries []model.ActivityEntry
	next    int
	full    bool
}

// NewActivity returns a log that keeps at most capacity entries.
func NewActivity(capacity int) *Activity {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &Activity{entries: make([]model.ActivityEntry, capacity)}
}

// Add records e, evicting the oldest entry when full.
func (a *Activity) Add(e model.ActivityEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[a.next] = e
	a.next = (a.next + 1) % len(a.entries)
	if a.next == 0 {
		a.full = true
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 means all.
func (a *Activity) Recent(limit int) []model.ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.next
	if a.full {
		n = len(a.entries)
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ActivityEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (a.next - 1 - i + len(a.entries)) % len(a.entries)
		out = append(out, a.entries[idx])
	}
	return out
}
