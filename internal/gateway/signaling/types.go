// Package signaling implements the gateway-side WebRTC signaling
// relay: a per-session room where an operator and a robot peer
// exchange SDP offers/answers and ICE candidates.
package signaling

import (
	"encoding/json"
	"errors"
)

// MessageType identifies a signaling frame's discriminator.
type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICE          MessageType = "ice"
	TypeLeave        MessageType = "leave"
	TypeSessionState MessageType = "session_state"
	TypeRevoked      MessageType = "revoked"
	TypeError        MessageType = "error"
)

// Role identifies which side of a session a peer occupies.
type Role string

const (
	RoleOperator Role = "operator"
	RoleRobot    Role = "robot"
)

// Error codes carried in error{code, message} frames.
const (
	ErrMissingToken    = "missing_token"
	ErrInvalidToken    = "invalid_token"
	ErrSessionMismatch = "session_mismatch"
	ErrTokenInvalid    = "token_invalid"
	ErrInvalidJSON     = "invalid_json"
	ErrNotJoined       = "not_joined"
	ErrUnknownType     = "unknown_type"
	ErrSlowConsumer    = "slow_consumer"
)

// Message is the wire shape for every signaling frame. Fields unused by
// a given type are omitted on the wire.
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Role      Role            `json:"role,omitempty"`
	Token     string          `json:"token,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	State     string          `json:"state,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

var (
	ErrRoomClosed = errors.New("room closed")
	ErrNoSuchRoom = errors.New("no such room")
)
