package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("membership.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMembershipRevoked, Payload: Revocation{GroupID: "7", ConvKey: "g:7"}})

	select {
	case evt := <-ch:
		if evt.Kind != KindMembershipRevoked {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMembershipRevoked)
		}
		if evt.ID == "" {
			t.Error("event ID not filled in")
		}
		if evt.Timestamp.IsZero() {
			t.Error("event timestamp not filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMembershipRevoked})
	b.Publish(Event{Kind: KindSyncMerged})

	select {
	case evt := <-ch:
		if evt.Kind != KindSyncMerged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindSyncMerged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure membership event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageUpserted})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
