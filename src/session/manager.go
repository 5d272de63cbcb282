package session

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultRecentCount is the history window used when callers have no
// preference.
const DefaultRecentCount = 10

// Manager owns every live session, keyed by transport connection id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxTurns int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxTurns bounds how many turns a session retains. Zero keeps every turn.
func WithMaxTurns(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxTurns = n
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session_manager")
	return m
}

// GetOrCreate returns the session for connID, creating it if needed. Concurrent
// calls for the same id always observe the same session.
func (m *Manager) GetOrCreate(connID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[connID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[connID]; ok {
		return s
	}
	s = newSession(m.now(), m.maxTurns)
	m.sessions[connID] = s
	m.logger.Info("created session", "session_id", s.ID(), "connection_id", connID)
	return s
}

// Get returns the session for connID without creating one.
func (m *Manager) Get(connID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connID]
	return s, ok
}

// Remove discards the session for connID. Removing an unknown id is a no-op.
func (m *Manager) Remove(connID string) {
	m.mu.Lock()
	s, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()

	if ok {
		m.logger.Info("removed session", "session_id", s.ID(), "connection_id", connID)
	}
}

// AppendMessage records a single turn on the connection's session.
func (m *Manager) AppendMessage(connID string, role Role, content, imageData string) {
	now := m.now()
	m.AppendTurns(connID, Turn{
		Role:      role,
		Content:   content,
		Timestamp: now,
		ImageData: imageData,
	})
}

// AppendTurns records several turns atomically, so an exchange is never split
// by a concurrent append on the same connection.
func (m *Manager) AppendTurns(connID string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	s := m.GetOrCreate(connID)
	now := m.now()
	stamped := make([]Turn, len(turns))
	copy(stamped, turns)
	for i := range stamped {
		if stamped[i].Timestamp.IsZero() {
			stamped[i].Timestamp = now
		}
	}
	s.append(now, stamped...)
	for _, t := range stamped {
		m.logger.Debug("appended turn", "session_id", s.ID(), "connection_id", connID, "role", string(t.Role))
	}
}

// RecentMessages returns the last count turns of the connection's session in
// chronological order.
func (m *Manager) RecentMessages(connID string, count int) []Turn {
	return m.GetOrCreate(connID).Recent(count)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
