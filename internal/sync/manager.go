package sync

import (
	"context"
	"sync"
	"time"

	"github.com/triplinked/chatsync/internal/convo"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/unread"
	"go.uber.org/zap"
)

// Manager owns the poller lifecycle: exactly one recurring task per open
// conversation, created on open and cancelled deterministically on close so
// churning through conversations never leaks timers.
type Manager struct {
	client   Fetcher
	engine   *Engine
	guard    *membership.Guard
	tracker  *unread.Tracker
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewManager creates a poller manager.
func NewManager(client Fetcher, engine *Engine, guard *membership.Guard, tracker *unread.Tracker, interval time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		client:   client,
		engine:   engine,
		guard:    guard,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
		pollers:  make(map[string]*Poller),
	}
}

// Open starts polling a conversation. Opening an already-open conversation
// returns the running poller.
func (m *Manager) Open(ctx context.Context, conv convo.Conversation) *Poller {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := conv.Key()
	if p, ok := m.pollers[key]; ok {
		return p
	}
	p := NewPoller(conv, m.client, m.engine, m.guard, m.tracker, m.interval, m.logger)
	m.pollers[key] = p
	p.Start(ctx)
	m.logger.Info("conversation sync started", zap.String("conv", key))
	return p
}

// Close stops and forgets a conversation's poller. Must be called when the
// conversation view closes; no further ticks fire afterwards.
func (m *Manager) Close(key string) {
	m.mu.Lock()
	p, ok := m.pollers[key]
	delete(m.pollers, key)
	m.mu.Unlock()

	if ok {
		p.Stop()
		m.logger.Info("conversation sync stopped", zap.String("conv", key))
	}
}

// SetFocused flags which open conversation is actively viewed.
func (m *Manager) SetFocused(key string, focused bool) {
	m.mu.Lock()
	p, ok := m.pollers[key]
	m.mu.Unlock()
	if ok {
		p.SetFocused(focused)
	}
}

// CloseAll stops every running poller. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[string]*Poller)
	m.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
