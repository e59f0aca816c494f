package server

import (
	"testing"
	"time"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := make(connRegistry)

	registry.register("c1", Identity{ParticipantID: "alice", SessionID: "s1"})

	identity, ok := registry.lookup("c1")
	if !ok || identity.ParticipantID != "alice" {
		t.Errorf("lookup(c1) = (%+v, %v), want alice", identity, ok)
	}

	if _, ok := registry.lookup("ghost"); ok {
		t.Error("lookup of unknown connection must report not-found")
	}

	// Re-registering replaces the record.
	registry.register("c1", Identity{ParticipantID: "alice", SessionID: "s2"})
	identity, _ = registry.lookup("c1")
	if identity.SessionID != "s2" {
		t.Errorf("session after re-register = %q, want s2", identity.SessionID)
	}
}

func TestRegistryRemoveReturnsLastIdentity(t *testing.T) {
	registry := make(connRegistry)
	registry.register("c1", Identity{ParticipantID: "alice"})

	identity, ok := registry.remove("c1")
	if !ok || identity.ParticipantID != "alice" {
		t.Errorf("remove(c1) = (%+v, %v), want alice identity", identity, ok)
	}

	if _, ok := registry.remove("c1"); ok {
		t.Error("second remove must report not-found")
	}
}

func TestRegistryTouchUpdatesLastActive(t *testing.T) {
	registry := make(connRegistry)
	registry.register("c1", Identity{ParticipantID: "alice"})

	now := time.Now().UTC()
	registry.touch("c1", now)

	identity, _ := registry.lookup("c1")
	if !identity.LastActive.Equal(now) {
		t.Errorf("LastActive = %v, want %v", identity.LastActive, now)
	}

	registry.touch("ghost", now)
}
