package httpapi

import (
	"sync"

	"github.com/haasonsaas/nexus-experience/internal/voiceconn"
)

// connRegistry tracks the live *voiceconn.Connection for every voice
// session this process knows about. voiceconn.Manager itself only tracks
// hook wiring keyed by session id, not the Connection value callers need
// to call Queue()/resume/teardown on, so the HTTP layer keeps its own
// registry, exactly as a transport-facing caller of Manager must.
type connRegistry struct {
	mu   sync.RWMutex
	byID map[string]*voiceconn.Connection
}

func newConnRegistry() *connRegistry {
	return &connRegistry{byID: make(map[string]*voiceconn.Connection)}
}

func (r *connRegistry) put(conn *voiceconn.Connection) {
	r.mu.Lock()
	r.byID[conn.SessionID] = conn
	r.mu.Unlock()
}

func (r *connRegistry) get(sessionID string) (*voiceconn.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[sessionID]
	return conn, ok
}

func (r *connRegistry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.byID, sessionID)
	r.mu.Unlock()
}
