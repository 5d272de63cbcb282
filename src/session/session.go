// Package session tracks per-connection conversation history.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one recorded message in a conversation. Turns are values and are
// never modified after they are appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// ImageData is the encoded image sent alongside the message, if any.
	ImageData string `json:"image_data,omitempty"`
}

// HasImage reports whether the turn carried an image payload.
func (t Turn) HasImage() bool {
	return t.ImageData != ""
}

// Session is the conversation state of a single live connection.
type Session struct {
	id        string
	createdAt time.Time
	maxTurns  int

	mu           sync.RWMutex
	lastActivity time.Time
	turns        []Turn
}

func newSession(now time.Time, maxTurns int) *Session {
	return &Session{
		id:           uuid.NewString(),
		createdAt:    now,
		lastActivity: now,
		maxTurns:     maxTurns,
	}
}

// ID returns the session identifier. It is unrelated to the connection id.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActivity returns the time of the most recent append.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Len returns the number of retained turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Turns returns a copy of all retained turns in chronological order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Recent returns the last count turns, oldest first.
func (s *Session) Recent(count int) []Turn {
	if count <= 0 {
		return []Turn{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.turns) - count
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// append adds turns under a single lock and trims the oldest entries once
// maxTurns is exceeded.
func (s *Session) append(now time.Time, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turns...)
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, s.turns[len(s.turns)-s.maxTurns:])
		s.turns = trimmed
	}
	if now.Before(s.createdAt) {
		now = s.createdAt
	}
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}
