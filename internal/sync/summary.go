package sync

import (
	"context"
	"strings"
	"time"

	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/unread"
	"go.uber.org/zap"
)

// SummaryLister is the backend view the summary poller consumes.
type SummaryLister interface {
	ListUnreadSenders(ctx context.Context) ([]platform.UnreadSender, error)
}

// SummaryPoller is the single global recurring task that refreshes the
// unread summary while an indicator surface is open. It is not tied to any
// open conversation, and whichever component opens the surface owns the
// handle and must stop it.
type SummaryPoller struct {
	client   SummaryLister
	tracker  *unread.Tracker
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSummaryPoller creates the global unread summary poller.
func NewSummaryPoller(client SummaryLister, tracker *unread.Tracker, interval time.Duration, logger *zap.Logger) *SummaryPoller {
	return &SummaryPoller{
		client:   client,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the recurring refresh with an immediate first tick.
func (s *SummaryPoller) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.tick(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the recurring task.
func (s *SummaryPoller) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *SummaryPoller) tick(ctx context.Context) {
	senders, err := s.client.ListUnreadSenders(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("unread summary refresh failed, retrying next tick", zap.Error(err))
		}
		return
	}

	// The summary covers direct peers only. Direct counts are replaced by
	// the server's view; group counts accumulated by open pollers survive.
	next := make(map[string]int)
	for key, n := range s.tracker.Snapshot() {
		if !strings.HasPrefix(key, "d:") {
			next[key] = n
		}
	}
	for _, sender := range senders {
		next["d:"+sender.PeerID] = sender.UnreadCount
	}
	s.tracker.Apply(next)
}
