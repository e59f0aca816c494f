// Package server indexes chat sessions to the set of connections currently
// joined to them. Session ids are assigned externally; the directory only
// tracks membership.
package server

// roomDirectory maps session ids to member connection ids. Owned by the Hub,
// mutated only while the hub lock is held. The last member leaving a session
// removes its entry; no empty rooms are retained.
type roomDirectory map[string]map[string]struct{}

// join adds the connection to the session's member set, creating the set if
// absent. Idempotent.
func (d roomDirectory) join(sessionID, connID string) {
	members, ok := d[sessionID]
	if !ok {
		members = make(map[string]struct{})
		d[sessionID] = members
	}
	members[connID] = struct{}{}
}

func (d roomDirectory) leave(sessionID, connID string) {
	members, ok := d[sessionID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(d, sessionID)
	}
}

// membersOf returns the member connection ids of a session. Unknown sessions
// yield an empty slice, not an error.
func (d roomDirectory) membersOf(sessionID string) []string {
	members, ok := d[sessionID]
	if !ok {
		return nil
	}
	connIDs := make([]string, 0, len(members))
	for connID := range members {
		connIDs = append(connIDs, connID)
	}
	return connIDs
}
