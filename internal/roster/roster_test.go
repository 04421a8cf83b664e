package roster

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/platform"
	"go.uber.org/zap"
)

type fakeClient struct {
	tripIDs    []string
	chatIDs    []string
	chatErr    error
	addErr     error
	removeErr  error
	leaveErr   error
	addCalls   []string
	delCalls   []string
	leaveCalls int
}

func (f *fakeClient) ListTripParticipants(context.Context, string) ([]string, error) {
	return f.tripIDs, nil
}

func (f *fakeClient) ListGroupParticipants(context.Context, string) ([]string, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatIDs, nil
}

func (f *fakeClient) AddParticipant(_ context.Context, _, userID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.addCalls = append(f.addCalls, userID)
	return nil
}

func (f *fakeClient) RemoveParticipant(_ context.Context, _, userID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.delCalls = append(f.delCalls, userID)
	return nil
}

func (f *fakeClient) LeaveGroup(context.Context, string) error {
	if f.leaveErr != nil {
		return f.leaveErr
	}
	f.leaveCalls++
	return nil
}

func newManager(client *fakeClient) (*Manager, *membership.Guard) {
	guard := membership.NewGuard(bus.New(), zap.NewNop())
	return NewManager(client, guard, bus.New(), "me", zap.NewNop()), guard
}

func TestListRosterAuthoritative(t *testing.T) {
	client := &fakeClient{
		tripIDs: []string{"me", "ana", "bob"},
		chatIDs: []string{"me", "ana"},
	}
	m, _ := newManager(client)

	roster, err := m.ListRoster(context.Background(), "t-1", "7")
	if err != nil {
		t.Fatal(err)
	}
	if roster.Origin != Authoritative {
		t.Errorf("origin = %v, want Authoritative", roster.Origin)
	}
	inChat := map[string]bool{}
	for _, mem := range roster.Members {
		inChat[mem.UserID] = mem.InChat
	}
	if !inChat["me"] || !inChat["ana"] {
		t.Error("chat members not flagged InChat")
	}
	if inChat["bob"] {
		t.Error("bob is in the trip but not the chat, yet flagged InChat")
	}
}

func TestListRosterInferredFallback(t *testing.T) {
	client := &fakeClient{
		tripIDs: []string{"me", "ana"},
		chatErr: &platform.APIError{Status: 501, Message: "not implemented"},
	}
	m, _ := newManager(client)

	roster, err := m.ListRoster(context.Background(), "t-1", "7")
	if err != nil {
		t.Fatal(err)
	}
	if roster.Origin != Inferred {
		t.Errorf("origin = %v, want Inferred when membership endpoint is unavailable", roster.Origin)
	}
	for _, mem := range roster.Members {
		if !mem.InChat {
			t.Errorf("inferred member %s not assumed InChat", mem.UserID)
		}
	}
}

func TestListRosterExclusionRevokes(t *testing.T) {
	client := &fakeClient{
		tripIDs: []string{"me"},
		chatErr: fmt.Errorf("participants: %w", platform.ErrExcluded),
	}
	m, guard := newManager(client)

	_, err := m.ListRoster(context.Background(), "t-1", "7")
	if !errors.Is(err, platform.ErrExcluded) {
		t.Fatalf("err = %v, want exclusion", err)
	}
	if guard.State("7") != membership.Removed {
		t.Error("exclusion from roster listing did not revoke membership")
	}
}

func TestAddMember(t *testing.T) {
	client := &fakeClient{}
	m, _ := newManager(client)
	roster := &Roster{Origin: Authoritative, Members: []Member{{UserID: "bob", InChat: false}}}

	if err := m.AddMember(context.Background(), "7", "bob", roster); err != nil {
		t.Fatal(err)
	}
	if !roster.Members[0].InChat {
		t.Error("roster not updated optimistically after add")
	}
}

func TestAddMemberFailureLeavesRoster(t *testing.T) {
	client := &fakeClient{addErr: errors.New("boom")}
	m, _ := newManager(client)
	roster := &Roster{Members: []Member{{UserID: "bob", InChat: false}}}

	if err := m.AddMember(context.Background(), "7", "bob", roster); err == nil {
		t.Fatal("expected error")
	}
	if roster.Members[0].InChat {
		t.Error("roster mutated despite failed add")
	}
}

func TestRemoveMember(t *testing.T) {
	client := &fakeClient{}
	m, guard := newManager(client)
	roster := &Roster{Members: []Member{{UserID: "bob", InChat: true}}}

	if err := m.RemoveMember(context.Background(), "7", "bob", roster); err != nil {
		t.Fatal(err)
	}
	if roster.Members[0].InChat {
		t.Error("removed member still InChat")
	}
	if guard.State("7") == membership.Removed {
		t.Error("removing someone else revoked own membership")
	}
}

func TestRemoveSelfTriggersRevocation(t *testing.T) {
	client := &fakeClient{}
	m, guard := newManager(client)
	roster := &Roster{Members: []Member{{UserID: "me", InChat: true}}}

	if err := m.RemoveMember(context.Background(), "7", "me", roster); err != nil {
		t.Fatal(err)
	}
	if guard.State("7") != membership.Removed {
		t.Error("self-removal did not follow the revocation path")
	}
}

func TestLeave(t *testing.T) {
	client := &fakeClient{}
	m, guard := newManager(client)

	if err := m.Leave(context.Background(), "7"); err != nil {
		t.Fatal(err)
	}
	if client.leaveCalls != 1 {
		t.Errorf("leave calls = %d, want 1", client.leaveCalls)
	}
	if guard.State("7") != membership.Removed {
		t.Error("voluntary leave did not revoke membership")
	}
}

func TestLeaveFailureKeepsMembership(t *testing.T) {
	client := &fakeClient{leaveErr: errors.New("boom")}
	m, guard := newManager(client)
	guard.Activate("7")

	if err := m.Leave(context.Background(), "7"); err == nil {
		t.Fatal("expected error")
	}
	if guard.State("7") != membership.Active {
		t.Error("failed leave changed membership state")
	}
}
