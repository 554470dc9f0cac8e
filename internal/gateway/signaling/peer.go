package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	peerSendQueueSize = 16
	peerWriteWait     = 5 * time.Second
)

// Peer wraps a websocket connection with a bounded outbound queue and
// a dedicated writer goroutine, mirroring the read/write-loop split the
// robot agent's signaling client uses, run here on the server side of
// the same protocol.
type Peer struct {
	ID        string
	Role      Role
	SessionID string

	conn   *websocket.Conn
	logger *zap.Logger

	send chan []byte
	stop chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPeer creates a Peer and starts its writer goroutine.
func NewPeer(id string, role Role, sessionID string, conn *websocket.Conn, logger *zap.Logger) *Peer {
	p := &Peer{
		ID:        id,
		Role:      role,
		SessionID: sessionID,
		conn:      conn,
		logger:    logger,
		send:      make(chan []byte, peerSendQueueSize),
		stop:      make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// TrySend enqueues a message for delivery without blocking. Returns
// false if the queue is full (the caller should treat this as
// slow_consumer and close the peer) or the peer is already closed.
func (p *Peer) TrySend(msg Message) bool {
	if p.isClosed() {
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to marshal signaling message", zap.Error(err))
		return false
	}

	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

// SendSync delivers a message bypassing the bounded queue. It is used
// for revocation broadcasts, the join confirmation, and error frames
// (including slow_consumer), where delivery must not be dropped for
// backpressure reasons.
func (p *Peer) SendSync(msg Message) error {
	if p.isClosed() {
		return ErrRoomClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrRoomClosed
	}
	p.conn.SetWriteDeadline(time.Now().Add(peerWriteWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.stop:
			return
		case data := <-p.send:
			p.mu.Lock()
			p.conn.SetWriteDeadline(time.Now().Add(peerWriteWait))
			err := p.conn.WriteMessage(websocket.TextMessage, data)
			p.mu.Unlock()
			if err != nil {
				p.logger.Warn("signaling write failed", zap.String("peer_id", p.ID), zap.Error(err))
				return
			}
		}
	}
}

// Close closes the underlying connection and stops the writer loop.
// Safe to call more than once.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.stop)
	return p.conn.Close()
}
