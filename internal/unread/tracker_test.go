package unread

import (
	"testing"
	"time"

	"github.com/triplinked/chatsync/internal/bus"
)

func TestApplyReplacesByKey(t *testing.T) {
	tr := NewTracker(nil)
	tr.Apply(map[string]int{"d:A": 0})

	tr.Apply(map[string]int{"d:A": 3})
	if got := tr.Count("d:A"); got != 3 {
		t.Errorf("Count(d:A) = %d, want 3", got)
	}

	// Keys missing from the next summary drop to zero.
	tr.Apply(map[string]int{"d:B": 1})
	if got := tr.Count("d:A"); got != 0 {
		t.Errorf("Count(d:A) after refresh = %d, want 0", got)
	}
	if got := tr.Count("d:B"); got != 1 {
		t.Errorf("Count(d:B) = %d, want 1", got)
	}
}

func TestResetWithoutWaitingForTick(t *testing.T) {
	tr := NewTracker(nil)
	tr.Apply(map[string]int{"d:A": 3})

	tr.Reset("d:A")
	if got := tr.Count("d:A"); got != 0 {
		t.Errorf("Count after mark-read = %d, want 0", got)
	}
	if tr.HasUnread() {
		t.Error("HasUnread true after the only conversation was read")
	}
}

func TestAddAccumulates(t *testing.T) {
	tr := NewTracker(nil)
	tr.Add("g:7", 2)
	tr.Add("g:7", 1)
	tr.Add("g:7", 0)
	if got := tr.Count("g:7"); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
}

func TestHasUnreadSkipsMuted(t *testing.T) {
	tr := NewTracker(nil)
	tr.Apply(map[string]int{"g:7": 5})
	tr.SetMuted("g:7", true)

	if tr.HasUnread() {
		t.Error("muted conversation lit the badge")
	}
	if got := tr.Count("g:7"); got != 5 {
		t.Errorf("muting discarded the count: %d", got)
	}

	tr.SetMuted("g:7", false)
	if !tr.HasUnread() {
		t.Error("unmuting did not restore the badge")
	}
}

func TestChangeEventsPublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("unread.", 10)
	defer unsub()

	tr := NewTracker(b)
	tr.Apply(map[string]int{"d:A": 3})

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindUnreadChanged {
			t.Errorf("kind = %q, want %q", evt.Kind, bus.KindUnreadChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for unread.changed")
	}

	// Identical summary publishes nothing.
	tr.Apply(map[string]int{"d:A": 3})
	select {
	case evt := <-ch:
		t.Errorf("unchanged summary published %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(nil)
	tr.Apply(map[string]int{"d:A": 1})

	snap := tr.Snapshot()
	snap["d:A"] = 99
	if got := tr.Count("d:A"); got != 1 {
		t.Errorf("mutating snapshot leaked into tracker: %d", got)
	}
}
