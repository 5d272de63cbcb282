package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"

	"github.com/elee1766/servoskull/src/session"
)

// ErrSessionNotFound is returned when no archived session matches.
var ErrSessionNotFound = errors.New("session not found")

// ArchiveSession writes a snapshot of s. Archiving the same session again
// replaces the earlier snapshot.
func (d *DB) ArchiveSession(ctx context.Context, connID string, s *session.Session) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := &SessionRecord{
		ID:             s.ID(),
		ConnectionID:   connID,
		CreatedAt:      s.CreatedAt(),
		LastActivityAt: s.LastActivity(),
		ArchivedAt:     time.Now(),
	}
	if err := UpsertSession(ctx, tx, rec); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	for i, t := range s.Turns() {
		turn := &TurnRecord{
			SessionID: rec.ID,
			Seq:       i,
			Role:      string(t.Role),
			Content:   t.Content,
			HasImage:  t.HasImage(),
			CreatedAt: t.Timestamp,
		}
		if err := InsertTurn(ctx, tx, turn); err != nil {
			return fmt.Errorf("failed to write turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	d.logger.Debug("archived session", "session_id", rec.ID, "connection_id", connID, "turns", s.Len())
	return nil
}

// UpsertSession inserts rec, dropping any turns archived for it before.
func UpsertSession(ctx context.Context, db Execer, rec *SessionRecord) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, rec.ID); err != nil {
		return err
	}
	query := `INSERT INTO sessions (id, connection_id, created_at, last_activity_at, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			connection_id = excluded.connection_id,
			last_activity_at = excluded.last_activity_at,
			archived_at = excluded.archived_at`
	_, err := db.ExecContext(ctx, query, rec.ID, rec.ConnectionID, rec.CreatedAt, rec.LastActivityAt, rec.ArchivedAt)
	return err
}

// InsertTurn writes one turn.
func InsertTurn(ctx context.Context, db Execer, turn *TurnRecord) error {
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	query := `INSERT INTO turns (id, session_id, seq, role, content, has_image, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, turn.ID, turn.SessionID, turn.Seq, turn.Role, turn.Content, turn.HasImage, turn.CreatedAt)
	return err
}

// ListSessions returns the most recently archived sessions first.
func ListSessions(ctx context.Context, db sqlscan.Querier, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT s.id, s.connection_id, s.created_at, s.last_activity_at, s.archived_at,
			(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id) AS turn_count
		FROM sessions s
		ORDER BY s.archived_at DESC
		LIMIT ?`
	var sessions []*SessionRecord
	if err := sqlscan.Select(ctx, db, &sessions, query, limit); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns one archived session by id.
func GetSession(ctx context.Context, db sqlscan.Querier, sessionID string) (*SessionRecord, error) {
	query := `SELECT s.id, s.connection_id, s.created_at, s.last_activity_at, s.archived_at,
			(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id) AS turn_count
		FROM sessions s
		WHERE s.id = ?`
	var rec SessionRecord
	if err := sqlscan.Get(ctx, db, &rec, query, sessionID); err != nil {
		if sqlscan.NotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetTurns returns a session's turns in order.
func GetTurns(ctx context.Context, db sqlscan.Querier, sessionID string) ([]*TurnRecord, error) {
	query := `SELECT id, session_id, seq, role, content, has_image, created_at FROM turns WHERE session_id = ? ORDER BY seq`
	var turns []*TurnRecord
	if err := sqlscan.Select(ctx, db, &turns, query, sessionID); err != nil {
		return nil, err
	}
	return turns, nil
}
