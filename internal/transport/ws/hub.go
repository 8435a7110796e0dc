package ws

import (
	"sync"
	"time"
)

// Hub tracks the active telemetry sessions.
type Hub struct {
	sessions sync.Map // map[string]*Session
}

// NewHub builds a fresh session hub.
func NewHub() *Hub {
	return &Hub{}
}

// Register adds a session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// CloseAll terminates every active session.
func (h *Hub) CloseAll() {
	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close()
		}
		h.sessions.Delete(key)
		return true
	})
}

// CloseIdle closes sessions that have been silent longer than maxIdle and
// reports how many were dropped.
func (h *Hub) CloseIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	closed := 0
	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok && session.LastActive().Before(cutoff) {
			session.Close()
			h.sessions.Delete(key)
			closed++
		}
		return true
	})
	return closed
}

// Count exposes the number of active telemetry sessions.
func (h *Hub) Count() int {
	count := 0
	h.sessions.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
