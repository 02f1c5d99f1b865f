package broadcast

import (
	"sync"

	"github.com/termitech/maestro/internal/domain/event"
	"github.com/termitech/maestro/pkg/logger"
)

// Manager lazily creates one Broadcaster per session log and hands
// out the existing one to subsequent subscribers.
type Manager struct {
	lg   logger.Logger
	opts []Option

	mu sync.Mutex
	m  map[string]*Broadcaster
}

// NewManager creates a broadcaster manager; opts apply to every
// broadcaster it creates.
func NewManager(lg logger.Logger, opts ...Option) *Manager {
	return &Manager{
		lg:   lg,
		opts: opts,
		m:    make(map[string]*Broadcaster),
	}
}

// For returns the broadcaster over the given log, creating it on
// first use.
func (m *Manager) For(log *event.Log) *Broadcaster {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.m[log.SessionID()]; ok {
		return b
	}
	b := New(log, m.lg, m.opts...)
	m.m[log.SessionID()] = b
	return b
}

// Drop forgets a session's broadcaster. Its pumps exit on their own
// once the log closes.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, sessionID)
}

// SubscriberCount sums attached subscribers across all sessions.
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.m {
		n += b.SubscriberCount()
	}
	return n
}
