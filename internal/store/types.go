package store

// Conversation is a row of the conversations table, the local view of a
// direct or group chat.
type Conversation struct {
	Key                string
	Kind               string // "direct" | "group"
	PeerID             string
	GroupID            string
	Name               string
	TripID             string
	IsOwner            bool
	Muted              bool
	LastMessageAt      int64 // unix ms
	LastMessagePreview string
}

// Message is a stored chat message. Confirmed messages carry a ServerID;
// optimistic ones carry a TempID and Pending until the send is resolved.
type Message struct {
	ID       int64 // local rowid
	ConvKey  string
	ServerID int64 // 0 while pending
	TempID   string
	SenderID string
	Content  string
	SentAt   int64 // unix ms
	Viewed   bool
	Pending  bool
}
