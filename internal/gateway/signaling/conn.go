package signaling

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chainkvm/teleop/internal/gateway/token"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const joinDeadline = 10 * time.Second

// ServeHTTP upgrades an incoming request to a websocket connection and
// runs its signaling session until the peer disconnects, the session
// is revoked, or a protocol error closes the channel.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.handleConn(conn)
}

func (h *Hub) handleConn(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(joinDeadline))

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		writeError(conn, "", ErrInvalidJSON, "malformed join message")
		conn.Close()
		return
	}
	if msg.Type != TypeJoin {
		writeError(conn, "", ErrNotJoined, "first message must be join")
		conn.Close()
		return
	}

	peer, room, ok := h.join(conn, msg)
	if !ok {
		return
	}
	conn.SetReadDeadline(time.Time{})

	defer h.leave(room, peer)
	h.readLoop(conn, peer, room)
}

func (h *Hub) join(conn *websocket.Conn, msg Message) (*Peer, *Room, bool) {
	if msg.Token == "" {
		writeError(conn, msg.SessionID, ErrMissingToken, "join requires a token")
		conn.Close()
		return nil, nil, false
	}
	if msg.SessionID == "" || (msg.Role != RoleOperator && msg.Role != RoleRobot) {
		writeError(conn, msg.SessionID, ErrInvalidJSON, "join requires session_id and role")
		conn.Close()
		return nil, nil, false
	}

	if err := h.tokens.Check(msg.Token, msg.SessionID); err != nil {
		writeError(conn, msg.SessionID, tokenErrorCode(err), err.Error())
		conn.Close()
		return nil, nil, false
	}

	room := h.getOrCreateRoom(msg.SessionID)
	peer := NewPeer(uuid.NewString(), msg.Role, msg.SessionID, conn, h.logger)
	room.Join(peer)

	peer.SendSync(Message{Type: TypeSessionState, SessionID: msg.SessionID, State: "joined"})
	room.Broadcast(peer, Message{Type: TypeSessionState, SessionID: msg.SessionID, State: "peer_joined"})

	if room.PeerCount() == 2 && h.activator != nil {
		if err := h.activator.Activate(msg.SessionID); err != nil {
			h.logger.Warn("session activation failed", zap.String("session_id", msg.SessionID), zap.Error(err))
		}
	}

	return peer, room, true
}

func (h *Hub) leave(room *Room, peer *Peer) {
	empty := room.Leave(peer)
	peer.Close()
	room.Broadcast(peer, Message{Type: TypeLeave, SessionID: peer.SessionID, Role: peer.Role})
	if empty {
		h.removeRoomIfEmpty(peer.SessionID)
	}
}

func (h *Hub) readLoop(conn *websocket.Conn, peer *Peer, room *Room) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			peer.SendSync(Message{Type: TypeError, Code: ErrInvalidJSON, Message: "malformed message"})
			continue
		}
		msg.SessionID = peer.SessionID

		switch msg.Type {
		case TypeOffer, TypeAnswer, TypeICE:
			room.Broadcast(peer, msg)
		case TypeLeave:
			return
		case TypeJoin:
			peer.SendSync(Message{Type: TypeError, Code: ErrInvalidJSON, Message: "already joined"})
		default:
			peer.SendSync(Message{Type: TypeError, Code: ErrUnknownType, Message: string(msg.Type)})
		}
	}
}

// tokenErrorCode maps a SessionChecker failure to the wire-level error
// code the signaling protocol expects at join time.
func tokenErrorCode(err error) string {
	switch {
	case errors.Is(err, token.ErrSessionMismatch):
		return ErrSessionMismatch
	case errors.Is(err, token.ErrTokenRevoked):
		return ErrTokenInvalid
	default:
		return ErrInvalidToken
	}
}

func writeError(conn *websocket.Conn, sessionID, code, message string) {
	data, err := json.Marshal(Message{Type: TypeError, SessionID: sessionID, Code: code, Message: message})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(peerWriteWait))
	conn.WriteMessage(websocket.TextMessage, data)
}
