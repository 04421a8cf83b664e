// Package outbox is the optimistic send pipeline: a user-authored message
// is appended locally before dispatch, swapped for the server's canonical
// record on success and retracted on failure so the text can be restored to
// the compose input for retry.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/store"
	intsync "github.com/triplinked/chatsync/internal/sync"
	"go.uber.org/zap"
)

// MaxContentLength is the client-side cap on message length, in runes.
const MaxContentLength = 500

var (
	// ErrEmptyContent is returned when the trimmed message is empty.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrContentTooLong is returned when content exceeds MaxContentLength.
	ErrContentTooLong = fmt.Errorf("message exceeds %d characters", MaxContentLength)
	// ErrSendInFlight is returned while a previous send for the same
	// conversation is still pending.
	ErrSendInFlight = errors.New("a send is already in flight for this conversation")
)

// Sender is what the pipeline needs from the platform client.
type Sender interface {
	SendDirectMessage(ctx context.Context, peerID, content string) (*platform.Message, error)
	SendGroupMessage(ctx context.Context, groupID, content string) (*platform.Message, error)
}

// Pipeline delivers user-authored messages with optimistic local feedback.
type Pipeline struct {
	db     *store.DB
	client Sender
	rec    *intsync.Reconciler
	guard  *membership.Guard
	bus    *bus.Bus
	self   string
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewPipeline creates a send pipeline. self is the local user id stamped on
// optimistic messages.
func NewPipeline(db *store.DB, client Sender, rec *intsync.Reconciler, guard *membership.Guard, b *bus.Bus, self string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		db:       db,
		client:   client,
		rec:      rec,
		guard:    guard,
		bus:      b,
		self:     self,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// InFlight reports whether a send is pending for a conversation. The
// compose action is disabled while true.
func (p *Pipeline) InFlight(convKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[convKey]
}

// Send validates, optimistically appends and dispatches one message. It
// blocks until the backend responds; callers issue it off the UI loop. At
// most one send per conversation may be outstanding.
func (p *Pipeline) Send(ctx context.Context, conv convo.Conversation, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}

	key := conv.Key()
	if conv.IsGroup() && !p.guard.IsActive(conv.GroupID) {
		return fmt.Errorf("send to revoked group: %w", platform.ErrExcluded)
	}

	p.mu.Lock()
	if p.inflight[key] {
		p.mu.Unlock()
		return ErrSendInFlight
	}
	p.inflight[key] = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inflight, key)
		p.mu.Unlock()
	}()

	tempID := uuid.New().String()
	optimistic := &store.Message{
		ConvKey:  key,
		TempID:   tempID,
		SenderID: p.self,
		Content:  content,
		SentAt:   time.Now().UnixMilli(),
	}
	if err := p.db.InsertOptimistic(optimistic); err != nil {
		return fmt.Errorf("append optimistic message: %w", err)
	}
	p.bus.Publish(bus.Event{
		Kind:    bus.KindMessageUpserted,
		Payload: map[string]string{"conv_key": key, "temp_id": tempID},
	})

	var canonical *platform.Message
	var err error
	if conv.IsGroup() {
		canonical, err = p.client.SendGroupMessage(ctx, conv.GroupID, content)
	} else {
		canonical, err = p.client.SendDirectMessage(ctx, conv.PeerID, content)
	}
	if err != nil {
		p.rollback(conv, tempID, content, err)
		return fmt.Errorf("send message: %w", err)
	}

	confirmed := &store.Message{
		ConvKey:  key,
		ServerID: canonical.ID,
		SenderID: canonical.SenderID,
		Content:  canonical.Content,
		SentAt:   canonical.SentAt.UnixMilli(),
		Viewed:   canonical.Viewed,
	}
	if err := p.db.ReplaceOptimistic(tempID, confirmed); err != nil {
		return fmt.Errorf("confirm message: %w", err)
	}
	if err := p.db.TouchLastMessage(key, confirmed.SentAt, preview(content)); err != nil {
		p.logger.Warn("failed to update conversation preview", zap.Error(err), zap.String("conv", key))
	}
	// Advancing the watermark keeps the next poll from re-fetching the
	// message we just merged.
	if err := p.rec.AdvanceWatermark(key, canonical.ID); err != nil {
		p.logger.Warn("failed to advance watermark", zap.Error(err), zap.String("conv", key))
	}
	if conv.IsGroup() {
		p.guard.Activate(conv.GroupID)
	}

	p.logger.Info("message sent",
		zap.String("conv", key),
		zap.String("temp_id", tempID),
		zap.Int64("server_id", canonical.ID))
	p.bus.Publish(bus.Event{
		Kind:    bus.KindMessageSendAck,
		Payload: map[string]string{"conv_key": key, "temp_id": tempID},
	})
	return nil
}

func (p *Pipeline) rollback(conv convo.Conversation, tempID, content string, cause error) {
	key := conv.Key()
	if _, err := p.db.RemoveOptimistic(tempID); err != nil {
		p.logger.Error("failed to retract optimistic message", zap.Error(err), zap.String("temp_id", tempID))
	}
	p.logger.Warn("send failed", zap.Error(cause), zap.String("conv", key))

	if conv.IsGroup() && errors.Is(cause, platform.ErrExcluded) {
		p.guard.MarkRemoved(conv.GroupID)
	}

	p.bus.Publish(bus.Event{
		Kind: bus.KindMessageSendFailed,
		Payload: bus.SendFailure{
			ConvKey: key,
			TempID:  tempID,
			Content: content,
			Err:     cause,
		},
	})
}

func preview(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:100]
}
