package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/unread"
	"go.uber.org/zap"
)

// Fetcher is what a poller needs from the platform client.
type Fetcher interface {
	FetchDirectMessages(ctx context.Context, peerID string, sinceID int64) ([]platform.Message, error)
	FetchGroupMessages(ctx context.Context, groupID string, sinceID int64) ([]platform.Message, error)
	MarkConversationRead(ctx context.Context, peerID string) error
	MarkGroupRead(ctx context.Context, groupID string) error
}

// Poller is the recurring fetch task for one open conversation. Transient
// failures are swallowed and retried on the next tick; the exclusion signal
// revokes membership and halts the loop for good.
type Poller struct {
	conv     convo.Conversation
	client   Fetcher
	engine   *Engine
	guard    *membership.Guard
	tracker  *unread.Tracker
	interval time.Duration
	logger   *zap.Logger

	focused atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller for a conversation. It does not start polling.
func NewPoller(conv convo.Conversation, client Fetcher, engine *Engine, guard *membership.Guard, tracker *unread.Tracker, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		conv:     conv,
		client:   client,
		engine:   engine,
		guard:    guard,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the recurring fetch. The first tick fires immediately so an
// opened conversation renders without waiting a full interval.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if !p.tick(ctx) {
			return
		}
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !p.tick(ctx) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the recurring task. No tick fires after Stop returns.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// SetFocused marks whether the conversation is the one actively viewed.
// Focused conversations get best-effort mark-read after each merge that
// yields new messages.
func (p *Poller) SetFocused(focused bool) {
	p.focused.Store(focused)
	if focused {
		p.tracker.Reset(p.conv.Key())
	}
}

// tick performs one fetch+merge. It returns false when the loop must halt.
func (p *Poller) tick(ctx context.Context) bool {
	if p.conv.IsGroup() && !p.guard.IsActive(p.conv.GroupID) {
		return false
	}

	key := p.conv.Key()
	since, err := p.engine.Watermark(key)
	if err != nil {
		p.logger.Warn("failed to read watermark", zap.Error(err), zap.String("conv", key))
		return true
	}

	var msgs []platform.Message
	if p.conv.IsGroup() {
		msgs, err = p.client.FetchGroupMessages(ctx, p.conv.GroupID, since)
	} else {
		msgs, err = p.client.FetchDirectMessages(ctx, p.conv.PeerID, since)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if p.conv.IsGroup() && errors.Is(err, platform.ErrExcluded) {
			p.guard.MarkRemoved(p.conv.GroupID)
			return false
		}
		// Transient failure: not surfaced, next tick retries.
		p.logger.Debug("poll failed, retrying next tick", zap.Error(err), zap.String("conv", key))
		return true
	}

	if p.conv.IsGroup() {
		p.guard.Activate(p.conv.GroupID)
	}

	res, err := p.engine.MergeBatch(p.conv, msgs)
	if err != nil {
		p.logger.Error("merge failed", zap.Error(err), zap.String("conv", key))
		return true
	}

	if res.Inbound > 0 {
		if p.focused.Load() {
			p.markRead()
		} else {
			p.tracker.Add(key, res.Inbound)
		}
	}
	return true
}

// markRead optimistically settles local read state and fires the backend
// call without waiting for it. A failure leaves local state as is; an
// exclusion signal still revokes.
func (p *Poller) markRead() {
	key := p.conv.Key()
	if err := p.engine.MarkViewed(p.conv); err != nil {
		p.logger.Warn("failed to mark local messages viewed", zap.Error(err), zap.String("conv", key))
	}
	p.tracker.Reset(key)

	conv := p.conv
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		if conv.IsGroup() {
			err = p.client.MarkGroupRead(ctx, conv.GroupID)
		} else {
			err = p.client.MarkConversationRead(ctx, conv.PeerID)
		}
		if err != nil {
			if conv.IsGroup() && errors.Is(err, platform.ErrExcluded) {
				p.guard.MarkRemoved(conv.GroupID)
				return
			}
			p.logger.Debug("mark read failed", zap.Error(err), zap.String("conv", key))
		}
	}()
}
