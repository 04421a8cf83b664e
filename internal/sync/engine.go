// Package sync keeps each open conversation's local state eventually
// consistent with the backend without a push channel: a fixed-interval
// poller per conversation, one global poller for the unread summary, and an
// idempotent merge so overlapping or out-of-order fetches converge.
package sync

import (
	"fmt"

	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion of fetched messages into the store.
type Engine struct {
	db     *store.DB
	rec    *Reconciler
	bus    *bus.Bus
	self   string
	logger *zap.Logger
}

// NewEngine creates a merge engine. self is the local user id, used to tell
// inbound messages from echoes of the user's own sends.
func NewEngine(db *store.DB, rec *Reconciler, b *bus.Bus, self string, logger *zap.Logger) *Engine {
	return &Engine{db: db, rec: rec, bus: b, self: self, logger: logger}
}

// MergeResult reports what a batch merge changed.
type MergeResult struct {
	Added   int // messages not previously present
	Inbound int // added messages authored by someone else
	MaxID   int64
}

// MergeBatch ingests a fetched batch. The merge is commutative and
// idempotent on message id: a message already present is skipped, so two
// overlapping fetches yield the same final store.
func (e *Engine) MergeBatch(conv convo.Conversation, msgs []platform.Message) (MergeResult, error) {
	key := conv.Key()
	var res MergeResult

	for _, pm := range msgs {
		m := &store.Message{
			ConvKey:  key,
			ServerID: pm.ID,
			SenderID: pm.SenderID,
			Content:  pm.Content,
			SentAt:   pm.SentAt.UnixMilli(),
			Viewed:   pm.Viewed,
		}
		added, err := e.db.InsertConfirmed(m)
		if err != nil {
			return res, fmt.Errorf("merge message %d: %w", pm.ID, err)
		}
		if added {
			res.Added++
			if pm.SenderID != e.self {
				res.Inbound++
			}
			if err := e.db.TouchLastMessage(key, m.SentAt, truncate(m.Content, 100)); err != nil {
				e.logger.Warn("failed to update conversation preview", zap.Error(err), zap.String("conv", key))
			}
		}
		if pm.ID > res.MaxID {
			res.MaxID = pm.ID
		}
	}

	if res.MaxID > 0 {
		if err := e.rec.AdvanceWatermark(key, res.MaxID); err != nil {
			return res, fmt.Errorf("advance watermark: %w", err)
		}
	}

	if res.Added > 0 {
		e.bus.Publish(bus.Event{
			Kind:    bus.KindSyncMerged,
			Payload: map[string]any{"conv_key": key, "added": res.Added},
		})
		e.bus.Publish(bus.Event{
			Kind:    bus.KindMessageUpserted,
			Payload: map[string]string{"conv_key": key},
		})
	}

	return res, nil
}

// Watermark returns the highest merged message id for a conversation.
func (e *Engine) Watermark(convKey string) (int64, error) {
	return e.rec.Watermark(convKey)
}

// MarkViewed flips local read receipts for a conversation. Read state is
// optimistic-only: the matching backend call is fire-and-forget and its
// failure never rolls this back.
func (e *Engine) MarkViewed(conv convo.Conversation) error {
	return e.db.MarkAllViewed(conv.Key())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
