// Package roster implements owner-only group membership management,
// decoupled from the messaging transport.
package roster

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/platform"
	"go.uber.org/zap"
)

// Origin tags where a roster came from. The chat-participants endpoint is
// not always available; when it is not, the trip participant list stands in
// and downstream code must be able to tell the difference.
type Origin int

const (
	// Authoritative means the group's actual chat membership was fetched.
	Authoritative Origin = iota
	// Inferred means every trip participant was assumed to be a chat member.
	Inferred
)

func (o Origin) String() string {
	if o == Inferred {
		return "inferred"
	}
	return "authoritative"
}

// Member is one trip participant with their derived chat standing.
type Member struct {
	UserID string
	InChat bool // false: removed from the chat but still in the trip
}

// Roster is the participant set of a group chat.
type Roster struct {
	Origin  Origin
	Members []Member
}

// Client is what roster management needs from the platform.
type Client interface {
	ListTripParticipants(ctx context.Context, tripID string) ([]string, error)
	ListGroupParticipants(ctx context.Context, groupID string) ([]string, error)
	AddParticipant(ctx context.Context, groupID, userID string) error
	RemoveParticipant(ctx context.Context, groupID, userID string) error
	LeaveGroup(ctx context.Context, groupID string) error
}

// Manager performs group admin operations and keeps a local roster view.
type Manager struct {
	client Client
	guard  *membership.Guard
	bus    *bus.Bus
	self   string
	logger *zap.Logger
}

// NewManager creates a roster manager. self is the acting user's id.
func NewManager(client Client, guard *membership.Guard, b *bus.Bus, self string, logger *zap.Logger) *Manager {
	return &Manager{client: client, guard: guard, bus: b, self: self, logger: logger}
}

// ListRoster fetches the authoritative trip participants, then the group's
// actual chat membership. When the chat-membership endpoint is unavailable
// the roster falls back to assuming every trip participant is a chat
// member, tagged Inferred so callers never mistake the guess for a verified
// list.
func (m *Manager) ListRoster(ctx context.Context, tripID, groupID string) (*Roster, error) {
	tripIDs, err := m.client.ListTripParticipants(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("list trip participants: %w", err)
	}

	chatIDs, err := m.client.ListGroupParticipants(ctx, groupID)
	if err != nil {
		if errors.Is(err, platform.ErrExcluded) {
			m.guard.MarkRemoved(groupID)
			return nil, fmt.Errorf("list group participants: %w", err)
		}
		m.logger.Warn("chat membership endpoint unavailable, inferring roster from trip",
			zap.Error(err), zap.String("group_id", groupID))
		members := make([]Member, 0, len(tripIDs))
		for _, id := range tripIDs {
			members = append(members, Member{UserID: id, InChat: true})
		}
		return &Roster{Origin: Inferred, Members: members}, nil
	}

	members := make([]Member, 0, len(tripIDs))
	for _, id := range tripIDs {
		members = append(members, Member{UserID: id, InChat: slices.Contains(chatIDs, id)})
	}
	return &Roster{Origin: Authoritative, Members: members}, nil
}

// AddMember adds userID to the group chat. On success the passed roster is
// updated in place; on failure it is left untouched and the operation is
// safely retryable.
func (m *Manager) AddMember(ctx context.Context, groupID, userID string, roster *Roster) error {
	if err := m.client.AddParticipant(ctx, groupID, userID); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	setInChat(roster, userID, true)
	m.publishChange(groupID)
	return nil
}

// RemoveMember removes userID from the group chat. Removing the acting
// user's own id triggers the full revocation path instead of a mere roster
// update.
func (m *Manager) RemoveMember(ctx context.Context, groupID, userID string, roster *Roster) error {
	if err := m.client.RemoveParticipant(ctx, groupID, userID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if userID == m.self {
		m.guard.MarkRemoved(groupID)
		return nil
	}
	setInChat(roster, userID, false)
	m.publishChange(groupID)
	return nil
}

// Leave removes the acting user from the group voluntarily. It shares the
// revocation teardown with admin self-removal.
func (m *Manager) Leave(ctx context.Context, groupID string) error {
	if err := m.client.LeaveGroup(ctx, groupID); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	m.guard.MarkRemoved(groupID)
	return nil
}

func (m *Manager) publishChange(groupID string) {
	m.bus.Publish(bus.Event{
		Kind:    bus.KindRosterChanged,
		Payload: map[string]string{"group_id": groupID},
	})
}

func setInChat(roster *Roster, userID string, inChat bool) {
	if roster == nil {
		return
	}
	for i := range roster.Members {
		if roster.Members[i].UserID == userID {
			roster.Members[i].InChat = inChat
			return
		}
	}
	if inChat {
		roster.Members = append(roster.Members, Member{UserID: userID, InChat: true})
	}
}
