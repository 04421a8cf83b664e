// Package membership tracks whether the local user may still interact with
// each group chat. Revocation can surface from any group-scoped call; the
// guard collapses however many of them report it into a single terminal
// transition and a single event.
package membership

import (
	"fmt"
	"slices"
	"sync"

	"github.com/triplinked/chatsync/internal/bus"
	"go.uber.org/zap"
)

// State is the local knowledge of the user's standing in one group.
type State string

const (
	// Unknown is the initial state before the first successful fetch.
	Unknown State = "UNKNOWN"
	// Active means the server has accepted a group-scoped call this session.
	Active State = "ACTIVE"
	// Removed is terminal for the session: no further polling or sending.
	Removed State = "REMOVED"
)

var validTransitions = map[State][]State{
	Unknown: {Active, Removed},
	Active:  {Removed},
	Removed: {},
}

// Guard tracks per-group membership state and fans revocation out on the bus.
type Guard struct {
	mu     sync.RWMutex
	states map[string]State
	bus    *bus.Bus
	logger *zap.Logger
}

// NewGuard creates a guard with every group in the Unknown state.
func NewGuard(b *bus.Bus, logger *zap.Logger) *Guard {
	return &Guard{
		states: make(map[string]State),
		bus:    b,
		logger: logger,
	}
}

// State returns the current state for a group.
func (g *Guard) State(groupID string) State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s, ok := g.states[groupID]; ok {
		return s
	}
	return Unknown
}

// IsActive reports whether group-scoped calls are still worth issuing.
// Unknown counts as active: the first fetch has to be allowed through.
func (g *Guard) IsActive(groupID string) bool {
	return g.State(groupID) != Removed
}

// Activate records a successful group-scoped call. Only the Unknown state
// moves; Removed stays terminal even if a stale success lands afterwards.
func (g *Guard) Activate(groupID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.transition(groupID, Active)
}

// MarkRemoved records the exclusion signal for a group. Idempotent: only the
// first call transitions and publishes membership.revoked; later calls from
// other failing requests are no-ops so the user sees one notification.
func (g *Guard) MarkRemoved(groupID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.states[groupID] == Removed {
		return false
	}
	if err := g.transition(groupID, Removed); err != nil {
		return false
	}
	if g.logger != nil {
		g.logger.Warn("group membership revoked", zap.String("group_id", groupID))
	}
	if g.bus != nil {
		g.bus.Publish(bus.Event{
			Kind:    bus.KindMembershipRevoked,
			Payload: bus.Revocation{GroupID: groupID, ConvKey: "g:" + groupID},
		})
	}
	return true
}

// Readmit forgets a Removed group so a fresh open may poll again. Only the
// host calls this, after the group owner re-added the user and the
// conversation was left and re-entered; nothing in the engine does it
// automatically.
func (g *Guard) Readmit(groupID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, groupID)
}

// transition enforces the state table. Callers hold g.mu.
func (g *Guard) transition(groupID string, to State) error {
	from, ok := g.states[groupID]
	if !ok {
		from = Unknown
	}
	if from == to {
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("invalid membership transition from %s to %s", from, to)
	}
	g.states[groupID] = to
	return nil
}
