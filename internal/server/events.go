// Package server defines the wire protocol shared by clients and the hub:
// the frame envelope, event names, and payload shapes for both directions.
package server

import (
	"encoding/json"
	"time"

	"github.com/lumadesk/livechat/internal/storage"
)

// Inbound event names.
const (
	EventJoinSession         = "join-session"
	EventSendMessage         = "send-message"
	EventStartTyping         = "start-typing"
	EventStopTyping          = "stop-typing"
	EventMarkMessagesRead    = "mark-messages-read"
	EventUpdateSessionStatus = "update-session-status"
)

// Outbound event names.
const (
	EventUserJoined           = "user-joined"
	EventUserLeft             = "user-left"
	EventSessionUsers         = "session-users"
	EventReceiveMessage       = "receive-message"
	EventUserTyping           = "user-typing"
	EventUserStoppedTyping    = "user-stopped-typing"
	EventMessagesRead         = "messages-read"
	EventSessionStatusUpdated = "session-status-updated"
	EventError                = "error"
)

// Frame is the envelope for every message on the wire, in both directions.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinSessionPayload carries a connection's identity into a chat session.
type JoinSessionPayload struct {
	SessionID      string `json:"session_id"`
	ParticipantID  string `json:"participant_id"`
	DisplayName    string `json:"display_name"`
	ContactAddress string `json:"contact_address,omitempty"`
	IsPrivileged   bool   `json:"is_privileged,omitempty"`
}

// SendMessagePayload is a request to persist and relay one chat message.
type SendMessagePayload struct {
	SessionID  string `json:"session_id"`
	Body       string `json:"body"`
	SenderRole string `json:"sender_role,omitempty"`
}

// TypingPayload signals the start or stop of message composition.
type TypingPayload struct {
	SessionID string `json:"session_id"`
}

// MarkMessagesReadPayload flags persisted messages as read by the sender.
type MarkMessagesReadPayload struct {
	SessionID  string   `json:"session_id"`
	MessageIDs []string `json:"message_ids"`
}

// UpdateSessionStatusPayload changes a session's lifecycle status.
// Privileged participants only.
type UpdateSessionStatusPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// UserJoinedPayload announces a new room member to its peers.
type UserJoinedPayload struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	IsPrivileged  bool      `json:"is_privileged"`
	Timestamp     time.Time `json:"timestamp"`
}

// UserLeftPayload announces a departed room member to the remaining peers.
type UserLeftPayload struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Timestamp     time.Time `json:"timestamp"`
}

// UserRecord describes one current room member.
type UserRecord struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	IsPrivileged  bool   `json:"is_privileged"`
}

// SessionUsersPayload lists the current members of a session, sent to a
// connection right after it joins.
type SessionUsersPayload struct {
	SessionID string       `json:"session_id"`
	Users     []UserRecord `json:"users"`
}

// ReceiveMessagePayload delivers a persisted message to the room, including
// the sender who must see their own action round-tripped.
type ReceiveMessagePayload struct {
	storage.Message
	DisplayName string `json:"display_name"`
}

// TypingEventPayload announces that a participant started composing.
type TypingEventPayload struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Timestamp     time.Time `json:"timestamp"`
}

// StoppedTypingPayload announces that a participant stopped composing.
type StoppedTypingPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

// MessagesReadPayload announces read receipts to the room.
type MessagesReadPayload struct {
	MessageIDs    []string  `json:"message_ids"`
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Timestamp     time.Time `json:"timestamp"`
}

// SessionStatusUpdatedPayload announces a session status change to the room.
type SessionStatusUpdatedPayload struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	UpdatedBy string    `json:"updated_by"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload is delivered to the offending sender only, never broadcast.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
