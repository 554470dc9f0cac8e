package signaling

import (
	"sync"

	"go.uber.org/zap"
)

// Room is a rendezvous point bound to a single session_id where at
// most one operator peer and one robot peer exchange signaling
// messages (invariant R1: at most one peer per role).
type Room struct {
	SessionID string

	mu     sync.Mutex
	peers  map[Role]*Peer
	logger *zap.Logger
}

func newRoom(sessionID string, logger *zap.Logger) *Room {
	return &Room{
		SessionID: sessionID,
		peers:     make(map[Role]*Peer),
		logger:    logger,
	}
}

// Join places a peer in the room, displacing (and closing) any prior
// peer already occupying that role.
func (r *Room) Join(p *Peer) {
	r.mu.Lock()
	prior, ok := r.peers[p.Role]
	r.peers[p.Role] = p
	r.mu.Unlock()

	if ok && prior != p {
		r.logger.Info("displacing prior peer for role",
			zap.String("session_id", r.SessionID), zap.String("role", string(p.Role)))
		prior.Close()
	}
}

// Leave removes a peer from the room if it is still the occupant for
// its role. Returns true if the room is now empty.
func (r *Room) Leave(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[p.Role]; ok && cur == p {
		delete(r.peers, p.Role)
	}
	return len(r.peers) == 0
}

// Broadcast delivers msg to every peer except the sender, using the
// bounded best-effort queue. Peers whose queue is full are closed and
// sent a slow_consumer error first.
func (r *Room) Broadcast(sender *Peer, msg Message) {
	r.mu.Lock()
	targets := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p != sender {
			targets = append(targets, p)
		}
	}
	r.mu.Unlock()

	for _, p := range targets {
		if !p.TrySend(msg) {
			p.SendSync(Message{Type: TypeError, Code: ErrSlowConsumer, Message: "send queue full"})
			p.Close()
		}
	}
}

// BroadcastSync delivers msg to every peer in the room synchronously,
// bypassing the bounded queue. Used only for revocation.
func (r *Room) BroadcastSync(msg Message) {
	r.mu.Lock()
	targets := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		targets = append(targets, p)
	}
	r.mu.Unlock()

	for _, p := range targets {
		p.SendSync(msg)
	}
}

// CloseAll closes every peer in the room.
func (r *Room) CloseAll() {
	r.mu.Lock()
	targets := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		targets = append(targets, p)
	}
	r.peers = make(map[Role]*Peer)
	r.mu.Unlock()

	for _, p := range targets {
		p.Close()
	}
}

// Peer returns the current occupant of a role, if any.
func (r *Room) Peer(role Role) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[role]
	return p, ok
}

// PeerCount returns the number of occupied roles.
func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
