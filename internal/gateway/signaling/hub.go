package signaling

import (
	"sync"

	"go.uber.org/zap"
)

// TokenChecker validates a presented capability token against the
// session_id the peer asked to join, returning a non-nil error when the
// token is bound to another session or is no longer valid (expired,
// revoked). Satisfied by a thin wrapper over
// token.Verifier + token.Registry.
type TokenChecker interface {
	Check(tokenString, expectedSessionID string) error
}

// SessionActivator is notified once both peers of a session have
// joined, so the session manager can transition pending -> active.
type SessionActivator interface {
	Activate(sessionID string) error
}

// Hub is the process-wide room registry, keyed by session_id. Rooms
// are created lazily on first join and destroyed when the last peer
// leaves or the session is revoked.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	logger *zap.Logger

	tokens    TokenChecker
	activator SessionActivator
}

// NewHub creates a Hub bound to a token checker and session activator.
func NewHub(tokens TokenChecker, activator SessionActivator, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:     make(map[string]*Room),
		logger:    logger,
		tokens:    tokens,
		activator: activator,
	}
}

func (h *Hub) getOrCreateRoom(sessionID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok {
		r = newRoom(sessionID, h.logger)
		h.rooms[sessionID] = r
	}
	return r
}

func (h *Hub) removeRoomIfEmpty(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[sessionID]; ok && r.PeerCount() == 0 {
		delete(h.rooms, sessionID)
	}
}

// Room returns the room for a session, if one exists.
func (h *Hub) Room(sessionID string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	return r, ok
}

// Revoke broadcasts a revoked frame to every peer of a session and
// tears the room down. Safe to call on a session with no room.
func (h *Hub) Revoke(sessionID, reason string) {
	h.mu.Lock()
	r, ok := h.rooms[sessionID]
	if ok {
		delete(h.rooms, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	r.BroadcastSync(Message{Type: TypeRevoked, SessionID: sessionID, Reason: reason})
	r.CloseAll()
}
