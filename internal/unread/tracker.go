// Package unread maintains the per-conversation unread counts behind the
// badge indicator. The summary poller replaces counts wholesale from the
// server; per-conversation merges only ever increase them and explicit
// mark-read actions reset a single key to zero.
package unread

import (
	"maps"
	"sync"

	"github.com/triplinked/chatsync/internal/bus"
)

// Tracker holds unread counts keyed by conversation key.
type Tracker struct {
	mu     sync.RWMutex
	counts map[string]int
	muted  map[string]bool
	bus    *bus.Bus
}

// NewTracker creates an empty tracker.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		counts: make(map[string]int),
		muted:  make(map[string]bool),
		bus:    b,
	}
}

// Apply replaces the tracked counts with a fresh server summary. Keys absent
// from the summary drop to zero; the server is authoritative on refresh.
func (t *Tracker) Apply(summary map[string]int) {
	t.mu.Lock()
	next := make(map[string]int, len(summary))
	for key, n := range summary {
		if n > 0 {
			next[key] = n
		}
	}
	changed := !maps.Equal(t.counts, next)
	t.counts = next
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// Add bumps a conversation's count by n new messages seen during a merge.
func (t *Tracker) Add(key string, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.counts[key] += n
	t.mu.Unlock()
	t.notify()
}

// Reset zeroes a conversation's count after an explicit mark-read, without
// waiting for the next summary tick.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	_, had := t.counts[key]
	delete(t.counts, key)
	t.mu.Unlock()
	if had {
		t.notify()
	}
}

// Count returns the unread count for one conversation.
func (t *Tracker) Count(key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[key]
}

// Snapshot returns a copy of all nonzero counts.
func (t *Tracker) Snapshot() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.counts)
}

// SetMuted marks a conversation as muted. Muted conversations keep counting
// but are excluded from the aggregate badge.
func (t *Tracker) SetMuted(key string, muted bool) {
	t.mu.Lock()
	if muted {
		t.muted[key] = true
	} else {
		delete(t.muted, key)
	}
	t.mu.Unlock()
	t.notify()
}

// HasUnread reports whether any unmuted conversation has unread messages.
func (t *Tracker) HasUnread() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for key, n := range t.counts {
		if n > 0 && !t.muted[key] {
			return true
		}
	}
	return false
}

func (t *Tracker) notify() {
	if t.bus != nil {
		t.bus.Publish(bus.Event{Kind: bus.KindUnreadChanged})
	}
}
