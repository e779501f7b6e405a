package mcp

import "sync"

// SessionRegistry maps account IDs to MCP session IDs.
// Populated when a client calls a tool that carries account_id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // accountID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates an account with a session, replacing any previous one.
func (r *SessionRegistry) Register(accountID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[accountID] = sessionID
}

// SessionFor returns the session ID for the given account, if connected.
func (r *SessionRegistry) SessionFor(accountID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[accountID]
	return sid, ok
}

// Remove deletes all account mappings for the given session ID.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for aid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, aid)
		}
	}
}

// Len returns the number of registered accounts.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
