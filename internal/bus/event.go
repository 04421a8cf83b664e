package bus

import "time"

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, e.g. "message." receives every message lifecycle event.
const (
	KindMessageUpserted   = "message.upserted"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"
	KindSyncMerged        = "sync.merged"
	KindMembershipRevoked = "membership.revoked"
	KindUnreadChanged     = "unread.changed"
	KindRosterChanged     = "roster.changed"
	KindConversationMuted = "conversation.muted"
)

// Event represents a domain event published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// SendFailure is the payload for message.send_failed events. Content carries
// the original text so the compose input can be restored for retry.
type SendFailure struct {
	ConvKey string
	TempID  string
	Content string
	Err     error
}

// Revocation is the payload for membership.revoked events.
type Revocation struct {
	GroupID string
	ConvKey string
}
