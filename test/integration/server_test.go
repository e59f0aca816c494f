package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumadesk/livechat/internal/server"
	"github.com/lumadesk/livechat/test/testhelpers"
)

func TestSendMessageRequiresJoin(t *testing.T) {
	_, wsURL := startServer(t, nil)

	bystander := testhelpers.Dial(t, wsURL, testOrigin)
	bystander.Join("s1", "bystander", "Joan", false)
	bystander.WaitEvent(server.EventSessionUsers, nil, waitTimeout)

	stranger := testhelpers.Dial(t, wsURL, testOrigin)
	stranger.Send(server.EventSendMessage, server.SendMessagePayload{
		SessionID: "s1", Body: "hello",
	})

	var failure server.ErrorPayload
	stranger.WaitEvent(server.EventError, &failure, waitTimeout)
	if failure.Code != server.CodeUnauthenticated {
		t.Errorf("error code = %q, want %q", failure.Code, server.CodeUnauthenticated)
	}

	// The error must stay with the sender.
	bystander.ExpectSilence(300 * time.Millisecond)
}

func TestSessionStatusUpdateRequiresPrivilege(t *testing.T) {
	_, wsURL := startServer(t, nil)

	visitor := testhelpers.Dial(t, wsURL, testOrigin)
	agent := testhelpers.Dial(t, wsURL, testOrigin)
	visitor.Join("s1", "visitor-1", "Ada", false)
	visitor.WaitEvent(server.EventSessionUsers, nil, waitTimeout)
	agent.Join("s1", "agent-1", "Grace", true)
	visitor.WaitEvent(server.EventUserJoined, nil, waitTimeout)

	visitor.Send(server.EventUpdateSessionStatus, server.UpdateSessionStatusPayload{
		SessionID: "s1", Status: "closed",
	})
	var failure server.ErrorPayload
	visitor.WaitEvent(server.EventError, &failure, waitTimeout)
	if failure.Code != server.CodeUnauthorized {
		t.Errorf("error code = %q, want %q", failure.Code, server.CodeUnauthorized)
	}

	agent.Send(server.EventUpdateSessionStatus, server.UpdateSessionStatusPayload{
		SessionID: "s1", Status: "closed",
	})
	var updated server.SessionStatusUpdatedPayload
	visitor.WaitEvent(server.EventSessionStatusUpdated, &updated, waitTimeout)
	if updated.Status != "closed" || updated.UpdatedBy != "agent-1" {
		t.Errorf("status update = %+v, want closed by agent-1", updated)
	}
	agent.WaitEvent(server.EventSessionStatusUpdated, nil, waitTimeout)
}

func TestDisallowedOriginRejected(t *testing.T) {
	_, wsURL := startServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example"}
	})

	if err := testhelpers.TryDial(wsURL, "http://evil.example"); err == nil {
		t.Error("handshake from disallowed origin must fail")
	}
	if err := testhelpers.TryDial(wsURL, ""); err == nil {
		t.Error("handshake without an Origin header must fail")
	}

	allowed := testhelpers.Dial(t, wsURL, "http://allowed.example")
	allowed.Join("s1", "visitor-1", "Ada", false)
	allowed.WaitEvent(server.EventSessionUsers, nil, waitTimeout)
}

func TestHealthEndpointReportsCounts(t *testing.T) {
	hub, wsURL := startServer(t, nil)
	httpURL := "http" + strings.TrimPrefix(strings.TrimSuffix(wsURL, "/ws"), "ws")

	readHealth := func() (status string, connections, sessions int) {
		t.Helper()
		resp, err := http.Get(httpURL + "/healthz")
		if err != nil {
			t.Fatalf("health request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("health status code = %d, want 200", resp.StatusCode)
		}
		var body struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
			Sessions    int    `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode health response: %v", err)
		}
		return body.Status, body.Connections, body.Sessions
	}

	status, connections, sessions := readHealth()
	if status != "ok" || connections != 0 || sessions != 0 {
		t.Fatalf("idle health = %s/%d/%d, want ok/0/0", status, connections, sessions)
	}

	visitor := testhelpers.Dial(t, wsURL, testOrigin)
	visitor.Join("s1", "visitor-1", "Ada", false)
	visitor.WaitEvent(server.EventSessionUsers, nil, waitTimeout)

	_, connections, sessions = readHealth()
	if connections != 1 || sessions != 1 {
		t.Errorf("active health = %d connections / %d sessions, want 1/1", connections, sessions)
	}

	wantConnections, wantSessions := hub.Stats()
	if connections != wantConnections || sessions != wantSessions {
		t.Errorf("health (%d/%d) disagrees with hub stats (%d/%d)",
			connections, sessions, wantConnections, wantSessions)
	}
}

func TestGracefulShutdownClosesClients(t *testing.T) {
	hub, wsURL := startServer(t, nil)

	visitor := testhelpers.Dial(t, wsURL, testOrigin)
	agent := testhelpers.Dial(t, wsURL, testOrigin)
	visitor.Join("s1", "visitor-1", "Ada", false)
	visitor.WaitEvent(server.EventSessionUsers, nil, waitTimeout)
	agent.Join("s1", "agent-1", "Grace", true)
	agent.WaitEvent(server.EventSessionUsers, nil, waitTimeout)
	visitor.WaitEvent(server.EventUserJoined, nil, waitTimeout)

	// Shutdown must run the disconnect cascade for every connected client
	// and release their pump goroutines, so it returns nil rather than
	// timing out.
	done := make(chan error, 1)
	go func() {
		done <- hub.Shutdown(2 * time.Second)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown() did not return")
	}

	if connections, sessions := hub.Stats(); connections != 0 || sessions != 0 {
		t.Errorf("Stats() after shutdown = (%d, %d), want (0, 0)", connections, sessions)
	}

	// The server side hung up, so the next read must fail.
	visitor.ExpectSilence(time.Second)
	agent.ExpectSilence(time.Second)
}

func TestUpgradeAfterShutdownIsRefused(t *testing.T) {
	hub, wsURL := startServer(t, nil)

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	header := http.Header{}
	header.Set("Origin", testOrigin)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		// Refusing the handshake outright is acceptable too.
		return
	}
	defer conn.Close()

	// The handshake got through, but the hub no longer accepts clients: the
	// connection must be closed promptly instead of parking forever.
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection accepted after shutdown was not closed")
	}
}
