// Package server records ephemeral "is typing" markers with timestamp-based
// expiry. Markers are keyed per (session, participant) rather than per
// connection so multiple connections from one logical user share one typing
// identity.
package server

import "time"

type typingKey struct {
	sessionID     string
	participantID string
}

type typingMarker struct {
	displayName string
	lastSignal  time.Time
}

// typingTracker maps (session, participant) to a timestamped marker. Owned by
// the Hub, mutated only while the hub lock is held. There are no per-signal
// timers; a repeat signal refreshes lastSignal and the periodic sweep's
// timestamp comparison supersedes stale markers.
type typingTracker map[typingKey]typingMarker

func (t typingTracker) mark(sessionID, participantID, displayName string, now time.Time) {
	t[typingKey{sessionID: sessionID, participantID: participantID}] = typingMarker{
		displayName: displayName,
		lastSignal:  now,
	}
}

// clear removes the marker if present and reports whether a removal occurred,
// so callers only broadcast a stopped-typing event when a marker existed.
func (t typingTracker) clear(sessionID, participantID string) (typingMarker, bool) {
	key := typingKey{sessionID: sessionID, participantID: participantID}
	marker, ok := t[key]
	if ok {
		delete(t, key)
	}
	return marker, ok
}

type expiredMarker struct {
	sessionID     string
	participantID string
	displayName   string
}

// expire removes every marker older than threshold and returns the removed
// entries so the sweeper can emit stopped-typing events for them.
func (t typingTracker) expire(threshold time.Duration, now time.Time) []expiredMarker {
	var expired []expiredMarker
	for key, marker := range t {
		if now.Sub(marker.lastSignal) >= threshold {
			expired = append(expired, expiredMarker{
				sessionID:     key.sessionID,
				participantID: key.participantID,
				displayName:   marker.displayName,
			})
			delete(t, key)
		}
	}
	return expired
}
