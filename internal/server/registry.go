// Package server tracks which participant identity is behind each live
// connection. The registry is the single source of truth for "who is online";
// the room directory and typing tracker are derived indices and any removal
// here must cascade to both.
package server

import "time"

// Participant roles.
const (
	RoleStandard   = "standard"
	RolePrivileged = "privileged"
)

// Identity is the participant record behind one live connection.
type Identity struct {
	ParticipantID  string
	DisplayName    string
	ContactAddress string
	SessionID      string
	Privileged     bool
	LastActive     time.Time
}

// connRegistry maps connection ids to identities. It is owned by the Hub and
// only mutated while the hub lock is held.
type connRegistry map[string]Identity

func (r connRegistry) register(connID string, identity Identity) {
	r[connID] = identity
}

func (r connRegistry) lookup(connID string) (Identity, bool) {
	identity, ok := r[connID]
	return identity, ok
}

func (r connRegistry) remove(connID string) (Identity, bool) {
	identity, ok := r[connID]
	if ok {
		delete(r, connID)
	}
	return identity, ok
}

func (r connRegistry) touch(connID string, now time.Time) {
	if identity, ok := r[connID]; ok {
		identity.LastActive = now
		r[connID] = identity
	}
}
