package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/unread"
	"go.uber.org/zap"
)

// fakeClient scripts fetch responses per call and records activity.
type fakeClient struct {
	mu        sync.Mutex
	batches   [][]platform.Message
	err       error
	fetches   int
	markReads int
	summary   []platform.UnreadSender
}

func (f *fakeClient) next() ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeClient) FetchDirectMessages(_ context.Context, _ string, _ int64) ([]platform.Message, error) {
	return f.next()
}

func (f *fakeClient) FetchGroupMessages(_ context.Context, _ string, _ int64) ([]platform.Message, error) {
	return f.next()
}

func (f *fakeClient) MarkConversationRead(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads++
	return nil
}

func (f *fakeClient) MarkGroupRead(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads++
	return nil
}

func (f *fakeClient) ListUnreadSenders(context.Context) ([]platform.UnreadSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeClient) markReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReads
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestPoller(t *testing.T, conv convo.Conversation, client *fakeClient, b *bus.Bus) (*Poller, *Engine, *membership.Guard, *unread.Tracker) {
	t.Helper()
	e, _ := testEngine(t, b)
	guard := membership.NewGuard(b, zap.NewNop())
	tracker := unread.NewTracker(nil)
	p := NewPoller(conv, client, e, guard, tracker, 10*time.Millisecond, zap.NewNop())
	return p, e, guard, tracker
}

func TestPollerMergesAndAdvances(t *testing.T) {
	client := &fakeClient{batches: [][]platform.Message{
		{pmsg(1, "42", "hello", time.Now())},
		{pmsg(2, "42", "again", time.Now())},
	}}
	conv := convo.DirectWith("42", "Ana")
	p, e, _, tracker := newTestPoller(t, conv, client, bus.New())

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool {
		since, _ := e.Watermark(conv.Key())
		return since == 2
	}, "watermark never reached 2")

	if got := tracker.Count(conv.Key()); got != 2 {
		t.Errorf("unfocused conversation unread = %d, want 2", got)
	}
	if got := client.markReadCount(); got != 0 {
		t.Errorf("unfocused conversation triggered %d mark-read calls", got)
	}
}

func TestPollerFocusedMarksRead(t *testing.T) {
	client := &fakeClient{batches: [][]platform.Message{
		{pmsg(1, "42", "hello", time.Now())},
	}}
	conv := convo.DirectWith("42", "Ana")
	p, _, _, tracker := newTestPoller(t, conv, client, bus.New())
	p.SetFocused(true)

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return client.markReadCount() >= 1 }, "mark-read never fired")

	if got := tracker.Count(conv.Key()); got != 0 {
		t.Errorf("focused conversation unread = %d, want 0", got)
	}
}

func TestPollerSwallowsTransientFailures(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("backend down: %w", &platform.APIError{Status: 500})}
	conv := convo.DirectWith("42", "Ana")
	p, _, _, _ := newTestPoller(t, conv, client, bus.New())

	p.Start(context.Background())
	defer p.Stop()

	// The loop keeps retrying rather than halting.
	waitFor(t, func() bool { return client.fetchCount() >= 3 }, "poller stopped retrying after transient failure")
}

func TestPollerHaltsOnExclusion(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("fetch: %w", platform.ErrExcluded)}
	conv := convo.GroupChat("7", "Patagonia")
	b := bus.New()
	ch, unsub := b.Subscribe("membership.", 10)
	defer unsub()

	p, _, guard, _ := newTestPoller(t, conv, client, b)
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return guard.State("7") == membership.Removed }, "guard never marked removed")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no revocation event")
	}

	// No further fetch ticks after revocation.
	settled := client.fetchCount()
	time.Sleep(60 * time.Millisecond)
	if got := client.fetchCount(); got != settled {
		t.Errorf("poller kept fetching after revocation: %d -> %d", settled, got)
	}
}

func TestPollerStopIsDeterministic(t *testing.T) {
	client := &fakeClient{}
	conv := convo.DirectWith("42", "Ana")
	p, _, _, _ := newTestPoller(t, conv, client, bus.New())

	p.Start(context.Background())
	waitFor(t, func() bool { return client.fetchCount() >= 1 }, "poller never ticked")
	p.Stop()

	settled := client.fetchCount()
	time.Sleep(50 * time.Millisecond)
	if got := client.fetchCount(); got != settled {
		t.Errorf("tick fired after Stop: %d -> %d", settled, got)
	}
}

func TestManagerLifecycle(t *testing.T) {
	client := &fakeClient{}
	b := bus.New()
	e, _ := testEngine(t, b)
	guard := membership.NewGuard(b, zap.NewNop())
	tracker := unread.NewTracker(nil)
	m := NewManager(client, e, guard, tracker, 10*time.Millisecond, zap.NewNop())

	conv := convo.DirectWith("42", "Ana")
	p1 := m.Open(context.Background(), conv)
	p2 := m.Open(context.Background(), conv)
	if p1 != p2 {
		t.Error("second Open created a duplicate poller")
	}

	m.Close(conv.Key())
	settled := client.fetchCount()
	time.Sleep(50 * time.Millisecond)
	if got := client.fetchCount(); got != settled {
		t.Errorf("poller still ticking after Close: %d -> %d", settled, got)
	}

	// Close of an unknown key is a no-op.
	m.Close("d:unknown")
	m.CloseAll()
}

func TestSummaryPoller(t *testing.T) {
	client := &fakeClient{summary: []platform.UnreadSender{{PeerID: "A", UnreadCount: 3}}}
	tracker := unread.NewTracker(nil)
	tracker.Add("g:7", 2) // group count owned by an open poller must survive

	s := NewSummaryPoller(client, tracker, 10*time.Millisecond, zap.NewNop())
	s.Start(context.Background())

	waitFor(t, func() bool { return tracker.Count("d:A") == 3 }, "summary never applied")

	if got := tracker.Count("g:7"); got != 2 {
		t.Errorf("group count wiped by summary refresh: %d", got)
	}
	s.Stop()

	// Explicit mark-read wins immediately, without waiting for a tick.
	tracker.Reset("d:A")
	if got := tracker.Count("d:A"); got != 0 {
		t.Errorf("count after reset = %d, want 0", got)
	}
}
