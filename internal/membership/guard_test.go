package membership

import (
	"testing"
	"time"

	"github.com/triplinked/chatsync/internal/bus"
)

func TestInitialStateUnknown(t *testing.T) {
	g := NewGuard(nil, nil)
	if s := g.State("7"); s != Unknown {
		t.Errorf("State = %v, want Unknown", s)
	}
	if !g.IsActive("7") {
		t.Error("Unknown group reported inactive; first fetch would never run")
	}
}

func TestActivate(t *testing.T) {
	g := NewGuard(nil, nil)
	g.Activate("7")
	if s := g.State("7"); s != Active {
		t.Errorf("State = %v, want Active", s)
	}
}

func TestMarkRemovedIdempotent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("membership.", 10)
	defer unsub()

	g := NewGuard(b, nil)
	g.Activate("7")

	if !g.MarkRemoved("7") {
		t.Error("first MarkRemoved reported no change")
	}
	if g.MarkRemoved("7") {
		t.Error("second MarkRemoved reported a change")
	}
	if s := g.State("7"); s != Removed {
		t.Errorf("State = %v, want Removed", s)
	}
	if g.IsActive("7") {
		t.Error("Removed group reported active")
	}

	// Exactly one revocation event, not two.
	select {
	case evt := <-ch:
		rev, ok := evt.Payload.(bus.Revocation)
		if !ok || rev.GroupID != "7" || rev.ConvKey != "g:7" {
			t.Errorf("unexpected payload %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for revocation event")
	}
	select {
	case evt := <-ch:
		t.Errorf("duplicate revocation event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRemovedFromUnknown(t *testing.T) {
	// Exclusion on the very first fetch skips Active entirely.
	g := NewGuard(nil, nil)
	if !g.MarkRemoved("7") {
		t.Error("MarkRemoved from Unknown reported no change")
	}
	if s := g.State("7"); s != Removed {
		t.Errorf("State = %v, want Removed", s)
	}
}

func TestRemovedIsTerminal(t *testing.T) {
	g := NewGuard(nil, nil)
	g.MarkRemoved("7")
	// A stale success response must not resurrect the group.
	g.Activate("7")
	if s := g.State("7"); s != Removed {
		t.Errorf("State = %v, want Removed after stale Activate", s)
	}
}

func TestReadmit(t *testing.T) {
	b := bus.New()
	g := NewGuard(b, nil)
	g.MarkRemoved("7")
	g.Readmit("7")

	if s := g.State("7"); s != Unknown {
		t.Errorf("State after readmit = %v, want Unknown", s)
	}
	// The full lifecycle is allowed again, including a second revocation.
	g.Activate("7")
	if !g.MarkRemoved("7") {
		t.Error("revocation after readmission reported no change")
	}
}

func TestGroupsIndependent(t *testing.T) {
	g := NewGuard(nil, nil)
	g.Activate("7")
	g.MarkRemoved("7")
	if !g.IsActive("8") {
		t.Error("revoking group 7 affected group 8")
	}
}
