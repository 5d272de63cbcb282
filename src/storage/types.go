package storage

import "time"

// SessionRecord is an archived conversation.
type SessionRecord struct {
	ID             string    `json:"id" db:"id"`
	ConnectionID   string    `json:"connection_id" db:"connection_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	ArchivedAt     time.Time `json:"archived_at" db:"archived_at"`
	TurnCount      int       `json:"turn_count" db:"turn_count"`
}

// TurnRecord is one archived turn. Image payloads are not kept, only whether
// the turn had one.
type TurnRecord struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Seq       int       `json:"seq" db:"seq"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	HasImage  bool      `json:"has_image" db:"has_image"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
