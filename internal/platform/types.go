package platform

import "time"

// Message is the wire shape of a chat message. IDs are server-assigned and
// monotonically increasing within a conversation.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId,omitempty"` // direct only
	GroupID     string    `json:"groupId,omitempty"`     // group only
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sentAt"`
	Viewed      bool      `json:"viewed"` // read receipt, direct only
}

// UnreadSender is one row of the global unread summary.
type UnreadSender struct {
	PeerID      string `json:"peerId"`
	UnreadCount int    `json:"unreadCount"`
}

// DirectPeer is a user the local user has a direct conversation with.
type DirectPeer struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// GroupSummary describes a group chat the local user belongs to.
type GroupSummary struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
	TripID  string `json:"tripId,omitempty"`
	OwnerID string `json:"ownerId"`
	Muted   bool   `json:"muted"`
}

type sendRequest struct {
	Content string `json:"content"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
