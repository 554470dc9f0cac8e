// Package api exposes the gateway's session/revocation REST surface
// and the JWKS document over HTTP, using go-chi for routing.
package api

import (
	"github.com/chainkvm/teleop/internal/gateway/policy"
	"github.com/chainkvm/teleop/internal/gateway/session"
)

// credentialPresentation is the minimal shape the core trusts out of a
// presented verifiable credential/presentation. Verifying the VC/VP's
// own signature chain is outside the core's scope; the gateway's HTTP
// layer is expected to sit behind whatever did the actual credential
// verification and forward only the fields the policy evaluator needs.
type credentialPresentation struct {
	Issuer  string `json:"issuer"`
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

type createSessionRequest struct {
	RobotID        string                 `json:"robot_id"`
	OperatorDID    string                 `json:"operator_did"`
	VCOrVP         credentialPresentation `json:"vc_or_vp"`
	RequestedScope []string               `json:"requested_scope"`
}

type policyRefResponse struct {
	PolicyID string `json:"policy_id"`
	Version  int    `json:"version"`
	Hash     string `json:"hash"`
}

type createSessionResponse struct {
	SessionID       string              `json:"session_id"`
	CapabilityToken string              `json:"capability_token"`
	SignalingURL    string              `json:"signaling_url"`
	ICEServers      []session.ICEServer `json:"ice_servers"`
	ExpiresAt       string              `json:"expires_at"`
	EffectiveScope  []string            `json:"effective_scope"`
	Limits          policy.Limits       `json:"limits"`
	Policy          policyRefResponse   `json:"policy"`
}

type sessionRecordResponse struct {
	SessionID      string        `json:"session_id"`
	RobotID        string        `json:"robot_id"`
	OperatorDID    string        `json:"operator_did"`
	State          string        `json:"state"`
	CreatedAt      string        `json:"created_at"`
	ExpiresAt      string        `json:"expires_at"`
	EffectiveScope []string      `json:"effective_scope"`
	Limits         policy.Limits `json:"limits"`
}

type revokeRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	OperatorDID string `json:"operator_did,omitempty"`
	Reason      string `json:"reason"`
}

type revokeResponse struct {
	RevocationID     string   `json:"revocation_id"`
	AffectedSessions []string `json:"affected_sessions"`
	Timestamp        string   `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Matched string `json:"matched_rule,omitempty"`
}
