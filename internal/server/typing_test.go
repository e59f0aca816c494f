package server

import (
	"testing"
	"time"
)

func TestTypingMarkRefreshesExistingMarker(t *testing.T) {
	tracker := make(typingTracker)
	first := time.Now().UTC()
	later := first.Add(2 * time.Second)

	tracker.mark("s1", "alice", "Alice", first)
	tracker.mark("s1", "alice", "Alice", later)

	if len(tracker) != 1 {
		t.Fatalf("tracker size = %d, want 1", len(tracker))
	}
	marker := tracker[typingKey{sessionID: "s1", participantID: "alice"}]
	if !marker.lastSignal.Equal(later) {
		t.Errorf("lastSignal = %v, want refreshed %v", marker.lastSignal, later)
	}
}

func TestTypingClearReportsRemoval(t *testing.T) {
	tracker := make(typingTracker)
	tracker.mark("s1", "alice", "Alice", time.Now().UTC())

	if _, cleared := tracker.clear("s1", "alice"); !cleared {
		t.Error("clear of existing marker must report removal")
	}
	if _, cleared := tracker.clear("s1", "alice"); cleared {
		t.Error("clear of absent marker must report no removal")
	}
}

func TestTypingMarkersAreParticipantScoped(t *testing.T) {
	tracker := make(typingTracker)
	now := time.Now().UTC()

	// Two connections from the same participant share one marker.
	tracker.mark("s1", "alice", "Alice", now)
	tracker.mark("s1", "alice", "Alice", now)
	tracker.mark("s1", "bob", "Bob", now)

	if len(tracker) != 2 {
		t.Errorf("tracker size = %d, want 2", len(tracker))
	}
}

func TestTypingExpireRemovesOnlyStaleMarkers(t *testing.T) {
	tracker := make(typingTracker)
	now := time.Now().UTC()
	tracker.mark("s1", "alice", "Alice", now.Add(-6*time.Second))
	tracker.mark("s1", "bob", "Bob", now.Add(-time.Second))

	expired := tracker.expire(5*time.Second, now)

	if len(expired) != 1 || expired[0].participantID != "alice" {
		t.Fatalf("expire returned %+v, want just alice", expired)
	}
	if _, ok := tracker[typingKey{sessionID: "s1", participantID: "bob"}]; !ok {
		t.Error("fresh marker was removed by expire")
	}
	if _, ok := tracker[typingKey{sessionID: "s1", participantID: "alice"}]; ok {
		t.Error("stale marker survived expire")
	}
}
