// Package storage defines the durable persistence boundary for chat messages
// and session metadata. The realtime core calls into a MessageStore
// synchronously per message and must tolerate its failure without corrupting
// in-memory presence state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Message is a persisted chat message. ID and CreatedAt are assigned by the
// store on save; callers leave them empty.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionStatus records the lifecycle state of a chat session as set by a
// privileged operator.
type SessionStatus struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageStore is the persistence gateway for the realtime core. Messages are
// only ever mutated to flip their read flag and are never deleted here.
type MessageStore interface {
	// SaveMessage persists a message and returns it with the server-assigned
	// id and creation timestamp filled in.
	SaveMessage(ctx context.Context, msg Message) (Message, error)

	// MarkMessagesRead flips the read flag on the given messages within a
	// session. Unknown ids are skipped, not errors.
	MarkMessagesRead(ctx context.Context, sessionID string, messageIDs []string) error

	// UpdateSessionStatus upserts the status record for a session.
	UpdateSessionStatus(ctx context.Context, sessionID, status, updatedBy string) error

	// ListSessionMessages returns up to limit most recent messages for a
	// session, ordered oldest first.
	ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	Close() error
}
