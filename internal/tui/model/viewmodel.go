package model

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/outbox"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/roster"
	"github.com/triplinked/chatsync/internal/store"
	intsync "github.com/triplinked/chatsync/internal/sync"
	"github.com/triplinked/chatsync/internal/tui/ui"
	"github.com/triplinked/chatsync/internal/unread"
	"go.uber.org/zap"
)

// ConvRow is a conversation list entry: the stored conversation joined with
// live unread and membership state.
type ConvRow struct {
	store.Conversation
	Unread  int
	Removed bool
}

// ViewModel caches engine state for the views and signals UI refreshes when
// bus events arrive. All getters return snapshots safe to use off-loop.
type ViewModel struct {
	mu sync.RWMutex

	db       *store.DB
	api      *platform.Client
	tracker  *unread.Tracker
	guard    *membership.Guard
	manager  *intsync.Manager
	pipeline *outbox.Pipeline
	rosters  *roster.Manager
	bus      *bus.Bus
	self     string
	selfName string
	logger   *zap.Logger

	conversations []store.Conversation
	messages      []store.Message
	active        *convo.Conversation
	activeRoster  *roster.Roster
	failedSend    *bus.SendFailure

	Flash     *ui.FlashModel
	StartedAt time.Time

	refreshCh chan struct{}
}

// Deps bundles everything the view model drives.
type Deps struct {
	DB       *store.DB
	API      *platform.Client
	Tracker  *unread.Tracker
	Guard    *membership.Guard
	Manager  *intsync.Manager
	Pipeline *outbox.Pipeline
	Rosters  *roster.Manager
	Bus      *bus.Bus
	SelfID   string
	SelfName string
	Logger   *zap.Logger
}

// NewViewModel creates a view model over the sync engine.
func NewViewModel(d Deps) *ViewModel {
	return &ViewModel{
		db:        d.DB,
		api:       d.API,
		tracker:   d.Tracker,
		guard:     d.Guard,
		manager:   d.Manager,
		pipeline:  d.Pipeline,
		rosters:   d.Rosters,
		bus:       d.Bus,
		self:      d.SelfID,
		selfName:  d.SelfName,
		logger:    d.Logger,
		Flash:     ui.NewFlashModel(),
		StartedAt: time.Now(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// SelfID returns the authenticated user id.
func (vm *ViewModel) SelfID() string { return vm.self }

// SelfName returns the authenticated display name, or the user id.
func (vm *ViewModel) SelfName() string {
	if vm.selfName != "" {
		return vm.selfName
	}
	return vm.self
}

// Bootstrap seeds the conversation list from the platform and starts the
// background unread summary. Safe to call again to re-sync the list.
func (vm *ViewModel) Bootstrap(ctx context.Context) error {
	peers, err := vm.api.ListDirectPeers(ctx)
	if err != nil {
		return err
	}
	groups, err := vm.api.ListGroups(ctx)
	if err != nil {
		return err
	}

	for _, p := range peers {
		c := convo.DirectWith(p.UserID, p.Name)
		if err := vm.db.UpsertConversation(&store.Conversation{
			Key:    c.Key(),
			Kind:   c.Kind.String(),
			PeerID: p.UserID,
			Name:   p.Name,
		}); err != nil {
			return err
		}
	}
	for _, g := range groups {
		c := convo.GroupChat(g.GroupID, g.Name)
		if err := vm.db.UpsertConversation(&store.Conversation{
			Key:     c.Key(),
			Kind:    c.Kind.String(),
			GroupID: g.GroupID,
			Name:    g.Name,
			TripID:  g.TripID,
			IsOwner: g.OwnerID == vm.self,
			Muted:   g.Muted,
		}); err != nil {
			return err
		}
		vm.tracker.SetMuted(c.Key(), g.Muted)
		vm.guard.Activate(g.GroupID)
	}

	return vm.reloadConversations()
}

func (vm *ViewModel) reloadConversations() error {
	convs, err := vm.db.ListConversations()
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Conversations returns the list joined with unread counts and membership
// state, most recent activity first.
func (vm *ViewModel) Conversations() []ConvRow {
	vm.mu.RLock()
	convs := vm.conversations
	vm.mu.RUnlock()

	rows := make([]ConvRow, 0, len(convs))
	for _, c := range convs {
		row := ConvRow{
			Conversation: c,
			Unread:       vm.tracker.Count(c.Key),
		}
		if c.Kind == "group" {
			row.Removed = !vm.guard.IsActive(c.GroupID)
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastMessageAt > rows[j].LastMessageAt
	})
	return rows
}

// TotalUnread sums unread counts across non-muted conversations.
func (vm *ViewModel) TotalUnread() int {
	vm.mu.RLock()
	convs := vm.conversations
	vm.mu.RUnlock()

	total := 0
	for _, c := range convs {
		if c.Muted {
			continue
		}
		total += vm.tracker.Count(c.Key)
	}
	return total
}

// OpenConversation makes key the active conversation: its poller starts (or
// resumes) focused, pending unreads are cleared, and messages load.
func (vm *ViewModel) OpenConversation(ctx context.Context, key string) error {
	row, err := vm.db.GetConversation(key)
	if err != nil {
		return err
	}

	c := rowToConvo(row)
	vm.mu.Lock()
	vm.active = &c
	vm.activeRoster = nil
	vm.mu.Unlock()

	vm.manager.Open(ctx, c)
	vm.manager.SetFocused(key, true)
	return vm.reloadMessages()
}

// CloseActive stops the active conversation's poller and returns to the
// conversation list.
func (vm *ViewModel) CloseActive() {
	vm.mu.Lock()
	active := vm.active
	vm.active = nil
	vm.activeRoster = nil
	vm.messages = nil
	vm.mu.Unlock()

	if active != nil {
		vm.manager.Close(active.Key())
	}
	vm.signalRefresh()
}

// Active returns the active conversation, or nil.
func (vm *ViewModel) Active() *convo.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// ActiveRemoved reports whether the active conversation is a group the local
// user has been removed from.
func (vm *ViewModel) ActiveRemoved() bool {
	vm.mu.RLock()
	active := vm.active
	vm.mu.RUnlock()
	if active == nil || !active.IsGroup() {
		return false
	}
	return !vm.guard.IsActive(active.GroupID)
}

func (vm *ViewModel) reloadMessages() error {
	vm.mu.RLock()
	active := vm.active
	vm.mu.RUnlock()
	if active == nil {
		return nil
	}
	msgs, err := vm.db.ListMessages(active.Key())
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Messages returns the loaded messages for the active conversation.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Send dispatches text to the active conversation through the outbox.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	vm.mu.RLock()
	active := vm.active
	vm.mu.RUnlock()
	if active == nil {
		return errors.New("no active conversation")
	}
	return vm.pipeline.Send(ctx, *active, text)
}

// SendInFlight reports whether the active conversation has an unresolved send.
func (vm *ViewModel) SendInFlight() bool {
	vm.mu.RLock()
	active := vm.active
	vm.mu.RUnlock()
	if active == nil {
		return false
	}
	return vm.pipeline.InFlight(active.Key())
}

// ConsumeSendFailure returns the most recent failed send once, so the
// composer can restore the text for retry.
func (vm *ViewModel) ConsumeSendFailure() *bus.SendFailure {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	f := vm.failedSend
	vm.failedSend = nil
	return f
}

// LoadRoster fetches the member roster for the active group.
func (vm *ViewModel) LoadRoster(ctx context.Context) error {
	vm.mu.RLock()
	active := vm.active
	vm.mu.RUnlock()
	if active == nil || !active.IsGroup() {
		return errors.New("no active group conversation")
	}
	r, err := vm.rosters.ListRoster(ctx, active.TripID, active.GroupID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.activeRoster = r
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Roster returns the loaded roster for the active group, or nil.
func (vm *ViewModel) Roster() *roster.Roster {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeRoster
}

// AddMember adds a trip participant to the active group chat.
func (vm *ViewModel) AddMember(ctx context.Context, userID string) error {
	vm.mu.RLock()
	active := vm.active
	r := vm.activeRoster
	vm.mu.RUnlock()
	if active == nil || !active.IsGroup() {
		return errors.New("no active group conversation")
	}
	if !active.IsOwner {
		return errors.New("only the group owner can manage members")
	}
	if err := vm.rosters.AddMember(ctx, active.GroupID, userID, r); err != nil {
		return err
	}
	vm.signalRefresh()
	return nil
}

// RemoveMember removes a member from the active group chat.
func (vm *ViewModel) RemoveMember(ctx context.Context, userID string) error {
	vm.mu.RLock()
	active := vm.active
	r := vm.activeRoster
	vm.mu.RUnlock()
	if active == nil || !active.IsGroup() {
		return errors.New("no active group conversation")
	}
	if !active.IsOwner {
		return errors.New("only the group owner can manage members")
	}
	if err := vm.rosters.RemoveMember(ctx, active.GroupID, userID, r); err != nil {
		return err
	}
	vm.signalRefresh()
	return nil
}

// LeaveActiveGroup leaves the active group chat.
func (vm *ViewModel) LeaveActiveGroup(ctx context.Context) error {
	vm.mu.RLock()
	active := vm.active
	vm.mu.RUnlock()
	if active == nil || !active.IsGroup() {
		return errors.New("no active group conversation")
	}
	return vm.rosters.Leave(ctx, active.GroupID)
}

// ToggleMute flips notification muting for a group conversation.
func (vm *ViewModel) ToggleMute(ctx context.Context, key string) error {
	row, err := vm.db.GetConversation(key)
	if err != nil {
		return err
	}
	if row.Kind != "group" {
		return errors.New("only group conversations can be muted")
	}
	muted := !row.Muted
	if err := vm.api.MuteGroup(ctx, row.GroupID, muted); err != nil {
		return err
	}
	if err := vm.db.SetMuted(key, muted); err != nil {
		return err
	}
	vm.tracker.SetMuted(key, muted)
	vm.bus.Publish(bus.Event{Kind: bus.KindConversationMuted, Payload: key})
	return vm.reloadConversations()
}

// Run consumes bus events until ctx is done, keeping cached state current.
// The UI draws whenever RefreshCh fires.
func (vm *ViewModel) Run(ctx context.Context) {
	events, cancel := vm.bus.Subscribe("", 64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			vm.handle(evt)
		}
	}
}

func (vm *ViewModel) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageUpserted, bus.KindMessageSendAck, bus.KindSyncMerged:
		if err := vm.reloadMessages(); err != nil {
			vm.logger.Warn("reload messages", zap.Error(err))
		}
		if err := vm.reloadConversations(); err != nil {
			vm.logger.Warn("reload conversations", zap.Error(err))
		}
	case bus.KindMessageSendFailed:
		if f, ok := evt.Payload.(bus.SendFailure); ok {
			vm.mu.Lock()
			vm.failedSend = &f
			vm.mu.Unlock()
			vm.Flash.Warn("Send failed, message restored to composer")
		}
		if err := vm.reloadMessages(); err != nil {
			vm.logger.Warn("reload messages", zap.Error(err))
		}
	case bus.KindMembershipRevoked:
		if rev, ok := evt.Payload.(bus.Revocation); ok {
			vm.Flash.Warn("You are no longer a participant in this group chat")
			vm.logger.Info("membership revoked", zap.String("group_id", rev.GroupID))
		}
		vm.signalRefresh()
	case bus.KindUnreadChanged, bus.KindRosterChanged, bus.KindConversationMuted:
		vm.signalRefresh()
	}
}

func rowToConvo(row *store.Conversation) convo.Conversation {
	if row.Kind == "group" {
		c := convo.GroupChat(row.GroupID, row.Name)
		c.TripID = row.TripID
		c.IsOwner = row.IsOwner
		c.Muted = row.Muted
		return c
	}
	return convo.DirectWith(row.PeerID, row.Name)
}
