// Package session implements the gateway's session lifecycle: creation
// gated by policy evaluation, token issuance, and the monotone state
// machine {pending, active, terminated, revoked}.
package session

import (
	"errors"
	"time"

	"github.com/chainkvm/teleop/internal/gateway/policy"
)

// State is a session's lifecycle stage. Transitions are monotone:
// pending -> active -> terminated, or * -> revoked; never backwards.
type State string

const (
	StatePending    State = "pending"
	StateActive     State = "active"
	StateTerminated State = "terminated"
	StateRevoked    State = "revoked"
)

// Record is the gateway's view of one session.
type Record struct {
	SessionID      string
	RobotID        string
	OperatorDID    string
	State          State
	CreatedAt      time.Time
	ExpiresAt      time.Time
	EffectiveScope []string
	Limits         policy.Limits
}

// ICEServer is an ICE hint handed to a newly created session's caller,
// generalizing the robot-side transport.ICEConfig into a wire-ready form.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Bundle is the response to a successful CreateSession call.
type Bundle struct {
	SessionID       string          `json:"session_id"`
	CapabilityToken string          `json:"capability_token"`
	SignalingURL    string          `json:"signaling_url"`
	ICEServers      []ICEServer     `json:"ice_servers"`
	ExpiresAt       time.Time       `json:"expires_at"`
	EffectiveScope  []string        `json:"effective_scope"`
	Limits          policy.Limits   `json:"limits"`
	Policy          policy.PolicyRef `json:"policy"`
}

// Errors surfaced by the session manager.
var (
	ErrPolicyDenied        = errors.New("policy_denied")
	ErrSessionNotFound     = errors.New("session_not_found")
	ErrSessionNotActive    = errors.New("session_not_active")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrTokenGeneratorUnset = errors.New("token_generator_not_configured")
	ErrPolicyNotConfigured = errors.New("policy_not_configured")
)

// PolicyDeniedError carries the policy evaluator's reason and matched
// rule alongside the generic ErrPolicyDenied sentinel, so the API layer
// can surface `{reason, matched_rule}` in a 403 response.
type PolicyDeniedError struct {
	Reason      string
	MatchedRule string
}

func (e *PolicyDeniedError) Error() string { return ErrPolicyDenied.Error() }
func (e *PolicyDeniedError) Unwrap() error { return ErrPolicyDenied }

// CreateRequest is the input to CreateSession.
type CreateRequest struct {
	RobotID        string
	OperatorDID    string
	Credential     policy.Credential
	RequestedScope []string
}
