// Package testhelpers provides shared utilities for integration-testing the
// livechat server over real WebSocket connections.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumadesk/livechat/internal/server"
)

// WebSocketURL converts an httptest server URL to its ws:// equivalent.
func WebSocketURL(t *testing.T, httpURL string) string {
	t.Helper()
	if !strings.HasPrefix(httpURL, "http") {
		t.Fatalf("unexpected test server URL %q", httpURL)
	}
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// WSClient wraps a websocket connection with frame decoding helpers. Outbound
// frames may arrive batched into one websocket message separated by newlines;
// the client splits them back apart.
type WSClient struct {
	t      *testing.T
	conn   *websocket.Conn
	queued [][]byte
}

// Dial connects to the server's websocket endpoint with the given Origin
// header.
func Dial(t *testing.T, wsURL, origin string) *WSClient {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	client := &WSClient{t: t, conn: conn}
	t.Cleanup(client.Close)
	return client
}

// TryDial attempts a websocket handshake and returns the error, for tests
// that expect rejection.
func TryDial(wsURL, origin string) error {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	return err
}

// Close shuts the underlying connection. Safe to call more than once.
func (c *WSClient) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Send writes one event frame to the server.
func (c *WSClient) Send(event string, payload any) {
	c.t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal %s payload: %v", event, err)
	}
	frame, err := json.Marshal(server.Frame{Event: event, Payload: body})
	if err != nil {
		c.t.Fatalf("marshal %s frame: %v", event, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("write %s frame: %v", event, err)
	}
}

// Join sends a join-session frame.
func (c *WSClient) Join(sessionID, participantID, displayName string, privileged bool) {
	c.t.Helper()
	c.Send(server.EventJoinSession, server.JoinSessionPayload{
		SessionID:     sessionID,
		ParticipantID: participantID,
		DisplayName:   displayName,
		IsPrivileged:  privileged,
	})
}

func (c *WSClient) nextRaw(deadline time.Time) ([]byte, bool) {
	c.t.Helper()
	if len(c.queued) > 0 {
		raw := c.queued[0]
		c.queued = c.queued[1:]
		return raw, true
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	for _, part := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(part)) > 0 {
			c.queued = append(c.queued, part)
		}
	}
	return c.nextRaw(deadline)
}

// WaitEvent discards frames until one with the wanted event arrives within
// the timeout, decoding its payload into dest when non-nil.
func (c *WSClient) WaitEvent(event string, dest any, timeout time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		raw, ok := c.nextRaw(deadline)
		if !ok {
			c.t.Fatalf("event %q never arrived within %v", event, timeout)
		}
		var frame server.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.t.Fatalf("unmarshal frame %s: %v", raw, err)
		}
		if frame.Event != event {
			continue
		}
		if dest != nil {
			if err := json.Unmarshal(frame.Payload, dest); err != nil {
				c.t.Fatalf("unmarshal %s payload: %v", event, err)
			}
		}
		return
	}
}

// ExpectSilence fails the test if any frame arrives within the window.
func (c *WSClient) ExpectSilence(window time.Duration) {
	c.t.Helper()
	raw, ok := c.nextRaw(time.Now().Add(window))
	if ok {
		c.t.Fatalf("expected silence, received frame: %s", raw)
	}
}
