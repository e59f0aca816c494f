// Package sqlite provides a SQLite-backed message store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lumadesk/livechat/internal/storage"
	"github.com/lumadesk/livechat/internal/storage/sqlite/migrations"
)

// Store persists chat messages and session status in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite message store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveMessage persists one message and returns it with the server-assigned id
// and creation timestamp.
func (s *Store) SaveMessage(ctx context.Context, msg storage.Message) (storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return storage.Message{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Message{}, fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(msg.SessionID)
	if sessionID == "" {
		return storage.Message{}, fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return storage.Message{}, fmt.Errorf("message body is required")
	}

	msg.SessionID = sessionID
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	msg.Read = false

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO messages (id, session_id, sender_id, sender_role, body, read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		msg.ID,
		msg.SessionID,
		msg.SenderID,
		msg.SenderRole,
		msg.Body,
		toMillis(msg.CreatedAt),
	)
	if err != nil {
		return storage.Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// MarkMessagesRead flips the read flag on the given messages. Ids that do not
// belong to the session are skipped.
func (s *Store) MarkMessagesRead(ctx context.Context, sessionID string, messageIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(messageIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(messageIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(messageIDs)+1)
	args = append(args, sessionID)
	for _, id := range messageIDs {
		args = append(args, id)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		fmt.Sprintf(`UPDATE messages SET read = 1 WHERE session_id = ? AND id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// UpdateSessionStatus upserts the status record for a session.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID, status, updatedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	status = strings.TrimSpace(status)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO session_status (session_id, status, updated_by, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   status = excluded.status,
		   updated_by = excluded.updated_by,
		   updated_at = excluded.updated_at`,
		sessionID,
		status,
		updatedBy,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// GetSessionStatus returns the stored status for a session.
func (s *Store) GetSessionStatus(ctx context.Context, sessionID string) (storage.SessionStatus, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionStatus{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionStatus{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT session_id, status, updated_by, updated_at
		 FROM session_status WHERE session_id = ?`,
		strings.TrimSpace(sessionID),
	)
	var record storage.SessionStatus
	var updatedAt int64
	if err := row.Scan(&record.SessionID, &record.Status, &record.UpdatedBy, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return storage.SessionStatus{}, storage.ErrNotFound
		}
		return storage.SessionStatus{}, fmt.Errorf("get session status: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListSessionMessages returns up to limit most recent messages for a session,
// oldest first.
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, session_id, sender_id, sender_role, body, read, created_at
		 FROM (
		   SELECT rowid AS seq, * FROM messages WHERE session_id = ?
		   ORDER BY created_at DESC, seq DESC LIMIT ?
		 ) ORDER BY created_at ASC, seq ASC`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	var result []storage.Message
	for rows.Next() {
		var msg storage.Message
		var read int
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.SenderRole, &msg.Body, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Read = read != 0
		msg.CreatedAt = fromMillis(createdAt)
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}
