// Package convo resolves a conversation to either a direct pair or a group
// chat and provides the stable key the rest of the engine indexes by.
package convo

import (
	"fmt"
	"strings"
)

// Kind distinguishes one-to-one chats from trip group chats.
type Kind int

const (
	Direct Kind = iota
	Group
)

func (k Kind) String() string {
	if k == Group {
		return "group"
	}
	return "direct"
}

// Conversation is the typed identity of a chat. Direct conversations are
// keyed by the other participant's user id, groups by the group id.
type Conversation struct {
	Kind Kind

	PeerID  string // Direct only
	GroupID string // Group only

	Name    string
	TripID  string // Group only, optional
	IsOwner bool   // Group only: local user administers the group
	Muted   bool   // Group only: local notification suppression
}

// DirectWith returns the identity of a one-to-one conversation.
func DirectWith(peerID, name string) Conversation {
	return Conversation{Kind: Direct, PeerID: peerID, Name: name}
}

// GroupChat returns the identity of a group conversation.
func GroupChat(groupID, name string) Conversation {
	return Conversation{Kind: Group, GroupID: groupID, Name: name}
}

// IsGroup reports whether the conversation is a group chat.
func (c Conversation) IsGroup() bool {
	return c.Kind == Group
}

// Key returns the store key for the conversation. There is exactly one
// key per distinct peer id and one per group id.
func (c Conversation) Key() string {
	if c.Kind == Group {
		return "g:" + c.GroupID
	}
	return "d:" + c.PeerID
}

// ParseKey reverses Key. Only the identity fields are recovered; metadata
// like the display name must come from the store.
func ParseKey(key string) (Conversation, error) {
	prefix, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Conversation{}, fmt.Errorf("malformed conversation key %q", key)
	}
	switch prefix {
	case "d":
		return Conversation{Kind: Direct, PeerID: id}, nil
	case "g":
		return Conversation{Kind: Group, GroupID: id}, nil
	default:
		return Conversation{}, fmt.Errorf("unknown conversation kind in key %q", key)
	}
}
