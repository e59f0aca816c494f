package integration

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumadesk/livechat/internal/server"
	"github.com/lumadesk/livechat/internal/storage/sqlite"
	"github.com/lumadesk/livechat/test/testhelpers"
)

const testOrigin = "http://client.example"

// startServer boots a hub backed by a throwaway SQLite store behind an
// httptest server and returns the hub plus the websocket URL.
func startServer(t *testing.T, mutate func(*server.Config)) (*server.Hub, string) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "livechat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	hub := server.NewHub(cfg, store, zerolog.Nop())
	go hub.Run()
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
	})

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(ts.Close)

	return hub, testhelpers.WebSocketURL(t, ts.URL)
}
