package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/store"
	intsync "github.com/triplinked/chatsync/internal/sync"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu      sync.Mutex
	err     error
	nextID  int64
	sends   int
	block   chan struct{} // when set, Send blocks until closed
	content string
}

func (f *fakeSender) send(content string) (*platform.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	f.content = content
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	return &platform.Message{
		ID:       f.nextID + 500,
		SenderID: "me",
		Content:  content,
		SentAt:   time.Now(),
	}, nil
}

func (f *fakeSender) SendDirectMessage(_ context.Context, _ string, content string) (*platform.Message, error) {
	return f.send(content)
}

func (f *fakeSender) SendGroupMessage(_ context.Context, _ string, content string) (*platform.Message, error) {
	return f.send(content)
}

func testPipeline(t *testing.T, client *fakeSender, b *bus.Bus) (*Pipeline, *store.DB, *membership.Guard, *intsync.Reconciler) {
	t.Helper()
	db, err := store.Open()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rec := intsync.NewReconciler(db, zap.NewNop())
	guard := membership.NewGuard(b, zap.NewNop())
	p := NewPipeline(db, client, rec, guard, b, "me", zap.NewNop())
	return p, db, guard, rec
}

func TestDirectRoundTrip(t *testing.T) {
	client := &fakeSender{}
	b := bus.New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	p, db, _, rec := testPipeline(t, client, b)
	conv := convo.DirectWith("42", "Ana")

	if err := p.Send(context.Background(), conv, "Oi!"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(conv.Key())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("store has %d messages, want exactly 1 (no optimistic duplicate)", len(msgs))
	}
	m := msgs[0]
	if m.ServerID != 501 || m.Content != "Oi!" || m.Pending || m.TempID != "" {
		t.Errorf("message not canonical: %+v", m)
	}

	since, _ := rec.Watermark(conv.Key())
	if since != 501 {
		t.Errorf("watermark = %d, want 501 so the next poll skips the echo", since)
	}

	kinds := map[string]bool{}
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds[evt.Kind] = true
		case <-time.After(time.Second):
			t.Fatalf("timeout; saw kinds %v", kinds)
		}
	}
	if !kinds[bus.KindMessageUpserted] || !kinds[bus.KindMessageSendAck] {
		t.Errorf("missing lifecycle events: %v", kinds)
	}
}

func TestOptimisticRollback(t *testing.T) {
	client := &fakeSender{err: errors.New("network down")}
	b := bus.New()
	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	p, db, _, _ := testPipeline(t, client, b)
	conv := convo.DirectWith("42", "Ana")

	err := p.Send(context.Background(), conv, "Oi!")
	if err == nil {
		t.Fatal("expected send failure")
	}

	msgs, _ := db.ListMessages(conv.Key())
	if len(msgs) != 0 {
		t.Errorf("store has %d messages after rollback, want 0", len(msgs))
	}

	select {
	case evt := <-ch:
		failure, ok := evt.Payload.(bus.SendFailure)
		if !ok {
			t.Fatalf("payload = %T, want SendFailure", evt.Payload)
		}
		if failure.Content != "Oi!" {
			t.Errorf("failure content = %q, want original text for compose restore", failure.Content)
		}
		if failure.ConvKey != conv.Key() {
			t.Errorf("failure conv = %q, want %q", failure.ConvKey, conv.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("no send_failed event")
	}
}

func TestGroupExclusionDuringSend(t *testing.T) {
	client := &fakeSender{err: fmt.Errorf("send: %w", platform.ErrExcluded)}
	b := bus.New()
	ch, unsub := b.Subscribe("membership.", 10)
	defer unsub()

	p, db, guard, _ := testPipeline(t, client, b)
	conv := convo.GroupChat("7", "Patagonia")
	guard.Activate("7")

	err := p.Send(context.Background(), conv, "anyone there?")
	if !errors.Is(err, platform.ErrExcluded) {
		t.Fatalf("err = %v, want exclusion", err)
	}
	if guard.State("7") != membership.Removed {
		t.Errorf("guard state = %v, want Removed", guard.State("7"))
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no revocation event")
	}

	msgs, _ := db.ListMessages(conv.Key())
	if len(msgs) != 0 {
		t.Errorf("optimistic message survived exclusion rollback")
	}

	// Further sends are refused locally without touching the network.
	sends := client.sends
	if err := p.Send(context.Background(), conv, "hello?"); !errors.Is(err, platform.ErrExcluded) {
		t.Errorf("send to revoked group err = %v, want exclusion", err)
	}
	if client.sends != sends {
		t.Error("send to revoked group reached the backend")
	}
}

func TestValidation(t *testing.T) {
	client := &fakeSender{}
	p, db, _, _ := testPipeline(t, client, bus.New())
	conv := convo.DirectWith("42", "Ana")

	if err := p.Send(context.Background(), conv, "   \n\t"); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("whitespace content err = %v, want ErrEmptyContent", err)
	}
	if err := p.Send(context.Background(), conv, strings.Repeat("é", MaxContentLength+1)); !errors.Is(err, ErrContentTooLong) {
		t.Errorf("oversized content err = %v, want ErrContentTooLong", err)
	}
	if err := p.Send(context.Background(), conv, strings.Repeat("é", MaxContentLength)); err != nil {
		t.Errorf("content at the cap rejected: %v", err)
	}

	if client.sends != 1 {
		t.Errorf("backend saw %d sends, want 1 (validation failures make no network call)", client.sends)
	}
	msgs, _ := db.ListMessages(conv.Key())
	if len(msgs) != 1 {
		t.Errorf("store has %d messages, want 1 (no state mutation on validation failure)", len(msgs))
	}
}

func TestSingleOutstandingSend(t *testing.T) {
	block := make(chan struct{})
	client := &fakeSender{block: block}
	p, _, _, _ := testPipeline(t, client, bus.New())
	conv := convo.DirectWith("42", "Ana")

	errCh := make(chan error, 1)
	go func() { errCh <- p.Send(context.Background(), conv, "first") }()

	deadline := time.Now().Add(2 * time.Second)
	for !p.InFlight(conv.Key()) {
		if time.Now().After(deadline) {
			t.Fatal("first send never became in-flight")
		}
		time.Sleep(time.Millisecond)
	}

	if err := p.Send(context.Background(), conv, "second"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("concurrent send err = %v, want ErrSendInFlight", err)
	}
	// A different conversation is not blocked.
	if p.InFlight(convo.DirectWith("43", "").Key()) {
		t.Error("unrelated conversation reported in-flight")
	}

	close(block)
	if err := <-errCh; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if p.InFlight(conv.Key()) {
		t.Error("conversation still in-flight after completion")
	}
}
