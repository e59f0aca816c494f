// Package server coordinates connection registration, room membership, typing
// state, and event broadcast for the livechat WebSocket system via the Hub
// type.
package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumadesk/livechat/internal/storage"
)

// Hub owns the three shared state maps: the connection registry, the room
// directory, and the typing tracker. All mutation funnels through its methods
// under a single mutex, so handlers stay effectively single-threaded per map.
// The only blocking call inside a handler is the persistence gateway, which
// runs outside the lock.
type Hub struct {
	cfg   Config
	store storage.MessageStore
	log   zerolog.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	registry connRegistry
	rooms    roomDirectory
	typing   typingTracker

	register   chan *Client
	unregister chan *Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub ready to manage WebSocket connections against the
// given message store.
func NewHub(cfg Config, store storage.MessageStore, log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        sanitizeConfig(cfg),
		store:      store,
		log:        log,
		clients:    make(map[string]*Client),
		registry:   make(connRegistry),
		rooms:      make(roomDirectory),
		typing:     make(typingTracker),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Stats reports the current connection count and active-session count for the
// health endpoint.
func (h *Hub) Stats() (connections, sessions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.rooms)
}

// Run starts the hub's main event loop: client registration, disconnect
// cleanup, and the periodic typing sweep. Call it in its own goroutine; it
// runs until Shutdown cancels the hub context.
func (h *Hub) Run() {
	defer close(h.done)

	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			h.drainDisconnects()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}

			h.mu.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mu.Unlock()
			h.log.Info().Str("conn_id", client.id).Str("addr", client.addr).
				Int("total_clients", clientCount).Msg("client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)

		case <-sweep.C:
			h.sweepTyping()
		}
	}
}

type delivery struct {
	targets []*Client
	frame   []byte
}

func (h *Hub) deliver(deliveries ...delivery) {
	for _, d := range deliveries {
		if d.frame == nil {
			continue
		}
		for _, target := range d.targets {
			if !h.safeSend(target, d.frame) {
				// Kick the stalled connection; its read pump unwinds
				// through the normal disconnect path.
				h.log.Warn().Str("conn_id", target.id).Str("addr", target.addr).
					Msg("send buffer full, closing connection")
				target.closeConnection()
			}
		}
	}
}

func (h *Hub) safeSend(client *Client, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) buildFrame(event string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return nil
	}
	frame, err := json.Marshal(Frame{Event: event, Payload: body})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to marshal event frame")
		return nil
	}
	return frame
}

func (h *Hub) sendError(c *Client, code, message string) {
	frame := h.buildFrame(EventError, ErrorPayload{Code: code, Message: message})
	if frame == nil {
		return
	}
	if !h.safeSend(c, frame) {
		h.log.Debug().Str("conn_id", c.id).Msg("dropped error frame for gone client")
	}
}

// roomClientsLocked resolves a session's member connections, excluding
// exceptConnID when non-empty. Callers must hold h.mu.
func (h *Hub) roomClientsLocked(sessionID, exceptConnID string) []*Client {
	memberIDs := h.rooms.membersOf(sessionID)
	targets := make([]*Client, 0, len(memberIDs))
	for _, connID := range memberIDs {
		if exceptConnID != "" && connID == exceptConnID {
			continue
		}
		if client, ok := h.clients[connID]; ok {
			targets = append(targets, client)
		}
	}
	return targets
}

// displayNameLocked resolves a participant's display name from any of their
// live connections in the session. Callers must hold h.mu.
func (h *Hub) displayNameLocked(sessionID, participantID string) string {
	for _, connID := range h.rooms.membersOf(sessionID) {
		if identity, ok := h.registry.lookup(connID); ok && identity.ParticipantID == participantID {
			return identity.DisplayName
		}
	}
	return participantID
}

// handleJoin registers the connection's identity and adds it to the session's
// room. Joining while still a member of another session implicitly leaves the
// previous room first.
func (h *Hub) handleJoin(c *Client, raw json.RawMessage) {
	var payload JoinSessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, CodeValidationError, "invalid join-session payload")
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	participantID := strings.TrimSpace(payload.ParticipantID)
	if sessionID == "" || participantID == "" {
		h.sendError(c, CodeValidationError, "session_id and participant_id are required")
		return
	}
	displayName := strings.TrimSpace(payload.DisplayName)
	if displayName == "" {
		displayName = participantID
	}

	now := time.Now().UTC()
	identity := Identity{
		ParticipantID:  participantID,
		DisplayName:    displayName,
		ContactAddress: strings.TrimSpace(payload.ContactAddress),
		SessionID:      sessionID,
		Privileged:     payload.IsPrivileged,
		LastActive:     now,
	}

	var deliveries []delivery

	h.mu.Lock()
	previous, hadPrevious := h.registry.lookup(c.id)
	h.registry.register(c.id, identity)

	if hadPrevious && previous.SessionID != "" && previous.SessionID != sessionID {
		h.rooms.leave(previous.SessionID, c.id)
		if _, cleared := h.typing.clear(previous.SessionID, previous.ParticipantID); cleared {
			deliveries = append(deliveries, delivery{
				targets: h.roomClientsLocked(previous.SessionID, ""),
				frame: h.buildFrame(EventUserStoppedTyping, StoppedTypingPayload{
					ParticipantID: previous.ParticipantID,
					DisplayName:   previous.DisplayName,
				}),
			})
		}
		deliveries = append(deliveries, delivery{
			targets: h.roomClientsLocked(previous.SessionID, ""),
			frame: h.buildFrame(EventUserLeft, UserLeftPayload{
				ParticipantID: previous.ParticipantID,
				DisplayName:   previous.DisplayName,
				Timestamp:     now,
			}),
		})
	}

	h.rooms.join(sessionID, c.id)

	memberIDs := h.rooms.membersOf(sessionID)
	users := make([]UserRecord, 0, len(memberIDs))
	for _, connID := range memberIDs {
		member, ok := h.registry.lookup(connID)
		if !ok {
			continue
		}
		users = append(users, UserRecord{
			ParticipantID: member.ParticipantID,
			DisplayName:   member.DisplayName,
			IsPrivileged:  member.Privileged,
		})
	}

	deliveries = append(deliveries,
		delivery{
			targets: h.roomClientsLocked(sessionID, c.id),
			frame: h.buildFrame(EventUserJoined, UserJoinedPayload{
				ParticipantID: participantID,
				DisplayName:   displayName,
				IsPrivileged:  payload.IsPrivileged,
				Timestamp:     now,
			}),
		},
		delivery{
			targets: []*Client{c},
			frame: h.buildFrame(EventSessionUsers, SessionUsersPayload{
				SessionID: sessionID,
				Users:     users,
			}),
		},
	)
	h.mu.Unlock()

	h.deliver(deliveries...)
	h.replayHistory(c, sessionID)
}

// replayHistory sends the session's recent persisted messages to a freshly
// joined connection, oldest first. Store failures degrade to an empty
// backlog; joining must not fail because the store is down.
func (h *Hub) replayHistory(c *Client, sessionID string) {
	if h.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.PersistTimeout)
	defer cancel()

	backlog, err := h.store.ListSessionMessages(ctx, sessionID, h.cfg.HistoryLimit)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("history replay unavailable")
		return
	}

	h.mu.RLock()
	names := make(map[string]string, len(backlog))
	for _, msg := range backlog {
		if _, ok := names[msg.SenderID]; !ok {
			names[msg.SenderID] = h.displayNameLocked(sessionID, msg.SenderID)
		}
	}
	h.mu.RUnlock()

	for _, msg := range backlog {
		frame := h.buildFrame(EventReceiveMessage, ReceiveMessagePayload{
			Message:     msg,
			DisplayName: names[msg.SenderID],
		})
		if frame == nil {
			continue
		}
		if !h.safeSend(c, frame) {
			return
		}
	}
}

// handleSend runs the message send flow: validate registration, persist via
// the gateway, broadcast the persisted result to the whole room, then clear
// the sender's typing marker.
func (h *Hub) handleSend(c *Client, raw json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, CodeValidationError, "invalid send-message payload")
		return
	}

	h.mu.RLock()
	identity, registered := h.registry.lookup(c.id)
	h.mu.RUnlock()
	if !registered {
		h.sendError(c, CodeUnauthenticated, "join a session before sending messages")
		return
	}

	body := strings.TrimSpace(payload.Body)
	if body == "" {
		h.sendError(c, CodeValidationError, "message body is required")
		return
	}

	role := strings.TrimSpace(payload.SenderRole)
	if role == "" {
		role = RoleStandard
		if identity.Privileged {
			role = RolePrivileged
		}
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.PersistTimeout)
	persisted, err := h.store.SaveMessage(ctx, storage.Message{
		SessionID:  identity.SessionID,
		SenderID:   identity.ParticipantID,
		SenderRole: role,
		Body:       body,
	})
	cancel()
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.id).Str("session_id", identity.SessionID).
			Msg("message persistence failed")
		h.sendError(c, CodePersistenceError, "message could not be saved")
		return
	}

	now := time.Now().UTC()
	var deliveries []delivery

	h.mu.Lock()
	h.registry.touch(c.id, now)
	deliveries = append(deliveries, delivery{
		targets: h.roomClientsLocked(identity.SessionID, ""),
		frame: h.buildFrame(EventReceiveMessage, ReceiveMessagePayload{
			Message:     persisted,
			DisplayName: identity.DisplayName,
		}),
	})
	if _, cleared := h.typing.clear(identity.SessionID, identity.ParticipantID); cleared {
		deliveries = append(deliveries, delivery{
			targets: h.roomClientsLocked(identity.SessionID, c.id),
			frame: h.buildFrame(EventUserStoppedTyping, StoppedTypingPayload{
				ParticipantID: identity.ParticipantID,
				DisplayName:   identity.DisplayName,
			}),
		})
	}
	h.mu.Unlock()

	h.deliver(deliveries...)
}

func (h *Hub) handleStartTyping(c *Client, raw json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, CodeValidationError, "invalid start-typing payload")
		return
	}

	now := time.Now().UTC()
	var d delivery

	h.mu.Lock()
	identity, registered := h.registry.lookup(c.id)
	if registered {
		h.typing.mark(identity.SessionID, identity.ParticipantID, identity.DisplayName, now)
		h.registry.touch(c.id, now)
		d = delivery{
			targets: h.roomClientsLocked(identity.SessionID, c.id),
			frame: h.buildFrame(EventUserTyping, TypingEventPayload{
				ParticipantID: identity.ParticipantID,
				DisplayName:   identity.DisplayName,
				Timestamp:     now,
			}),
		}
	}
	h.mu.Unlock()

	if !registered {
		h.sendError(c, CodeUnauthenticated, "join a session before typing signals")
		return
	}
	h.deliver(d)
}

func (h *Hub) handleStopTyping(c *Client, raw json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, CodeValidationError, "invalid stop-typing payload")
		return
	}

	var d delivery
	h.mu.Lock()
	identity, registered := h.registry.lookup(c.id)
	if registered {
		if _, cleared := h.typing.clear(identity.SessionID, identity.ParticipantID); cleared {
			d = delivery{
				targets: h.roomClientsLocked(identity.SessionID, c.id),
				frame: h.buildFrame(EventUserStoppedTyping, StoppedTypingPayload{
					ParticipantID: identity.ParticipantID,
					DisplayName:   identity.DisplayName,
				}),
			}
		}
	}
	h.mu.Unlock()

	if !registered {
		h.sendError(c, CodeUnauthenticated, "join a session before typing signals")
		return
	}
	h.deliver(d)
}

// handleMarkRead flips read flags in the store and announces the receipts to
// the whole room. An empty id list is a silent no-op.
func (h *Hub) handleMarkRead(c *Client, raw json.RawMessage) {
	var payload MarkMessagesReadPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, CodeValidationError, "invalid mark-messages-read payload")
		return
	}

	h.mu.RLock()
	identity, registered := h.registry.lookup(c.id)
	h.mu.RUnlock()
	if !registered {
		h.sendError(c, CodeUnauthenticated, "join a session before marking messages read")
		return
	}

	if len(payload.MessageIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.PersistTimeout)
	err := h.store.MarkMessagesRead(ctx, identity.SessionID, payload.MessageIDs)
	cancel()
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.id).Str("session_id", identity.SessionID).
			Msg("mark messages read failed")
		h.sendError(c, CodePersistenceError, "read receipts could not be saved")
		return
	}

	h.mu.Lock()
	d := delivery{
		targets: h.roomClientsLocked(identity.SessionID, ""),
		frame: h.buildFrame(EventMessagesRead, MessagesReadPayload{
			MessageIDs:    payload.MessageIDs,
			ParticipantID: identity.ParticipantID,
			DisplayName:   identity.DisplayName,
			Timestamp:     time.Now().UTC(),
		}),
	}
	h.mu.Unlock()

	h.deliver(d)
}

// handleUpdateStatus persists a session status change and announces it to the
// whole room. Privileged participants only.
func (h *Hub) handleUpdateStatus(c *Client, raw json.RawMessage) {
	var payload UpdateSessionStatusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.sendError(c, CodeValidationError, "invalid update-session-status payload")
		return
	}

	h.mu.RLock()
	identity, registered := h.registry.lookup(c.id)
	h.mu.RUnlock()
	if !registered {
		h.sendError(c, CodeUnauthenticated, "join a session before updating status")
		return
	}
	if !identity.Privileged {
		h.sendError(c, CodeUnauthorized, "session status updates require a privileged participant")
		return
	}

	status := strings.TrimSpace(payload.Status)
	if status == "" {
		h.sendError(c, CodeValidationError, "status is required")
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.PersistTimeout)
	err := h.store.UpdateSessionStatus(ctx, identity.SessionID, status, identity.ParticipantID)
	cancel()
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.id).Str("session_id", identity.SessionID).
			Msg("session status update failed")
		h.sendError(c, CodePersistenceError, "session status could not be saved")
		return
	}

	h.mu.Lock()
	d := delivery{
		targets: h.roomClientsLocked(identity.SessionID, ""),
		frame: h.buildFrame(EventSessionStatusUpdated, SessionStatusUpdatedPayload{
			SessionID: identity.SessionID,
			Status:    status,
			UpdatedBy: identity.ParticipantID,
			Timestamp: time.Now().UTC(),
		}),
	}
	h.mu.Unlock()

	h.deliver(d)
}

// dropClient runs the disconnect cascade: registry removal, room departure,
// typing cleanup, and the user-left broadcast to whoever remains. A room
// emptying mid-cleanup is not an error.
func (h *Hub) dropClient(c *Client) {
	if c == nil {
		return
	}

	var deliveries []delivery

	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	c.closed = true
	clientCount := len(h.clients)

	identity, hadIdentity := h.registry.remove(c.id)
	if hadIdentity && identity.SessionID != "" {
		h.rooms.leave(identity.SessionID, c.id)
		if _, cleared := h.typing.clear(identity.SessionID, identity.ParticipantID); cleared {
			deliveries = append(deliveries, delivery{
				targets: h.roomClientsLocked(identity.SessionID, ""),
				frame: h.buildFrame(EventUserStoppedTyping, StoppedTypingPayload{
					ParticipantID: identity.ParticipantID,
					DisplayName:   identity.DisplayName,
				}),
			})
		}
		deliveries = append(deliveries, delivery{
			targets: h.roomClientsLocked(identity.SessionID, ""),
			frame: h.buildFrame(EventUserLeft, UserLeftPayload{
				ParticipantID: identity.ParticipantID,
				DisplayName:   identity.DisplayName,
				Timestamp:     time.Now().UTC(),
			}),
		})
	}
	h.mu.Unlock()

	close(c.send)
	h.log.Info().Str("conn_id", c.id).Str("addr", c.addr).
		Int("total_clients", clientCount).Msg("client unregistered")

	h.deliver(deliveries...)
}

// sweepTyping expires markers older than the typing threshold and emits the
// corresponding stopped-typing events. This is the backstop against clients
// that started typing and then went unreachable without a clean disconnect.
func (h *Hub) sweepTyping() {
	var deliveries []delivery

	h.mu.Lock()
	expired := h.typing.expire(h.cfg.TypingExpiry, time.Now().UTC())
	for _, marker := range expired {
		deliveries = append(deliveries, delivery{
			targets: h.roomClientsLocked(marker.sessionID, ""),
			frame: h.buildFrame(EventUserStoppedTyping, StoppedTypingPayload{
				ParticipantID: marker.participantID,
				DisplayName:   marker.displayName,
			}),
		})
	}
	h.mu.Unlock()

	if len(expired) > 0 {
		h.log.Debug().Int("expired", len(expired)).Msg("typing markers swept")
	}
	h.deliver(deliveries...)
}

// drainDisconnects keeps receiving unregisters after shutdown begins until
// every connected client has run its disconnect cascade. Without this the
// read pumps would block forever handing their client back and the write
// pumps would never see their send channel close. Registrations that race
// in during the drain are refused outright.
func (h *Hub) drainDisconnects() {
	for {
		h.mu.RLock()
		remaining := len(h.clients)
		h.mu.RUnlock()
		if remaining == 0 {
			return
		}

		select {
		case client := <-h.unregister:
			h.dropClient(client)
		case client := <-h.register:
			if client != nil {
				client.closeConnection()
			}
		}
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.closeConnection()
	}

	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
