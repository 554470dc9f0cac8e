package token

import "errors"

var (
	// ErrSessionMismatch indicates the token's sid claim does not match
	// the session_id presented alongside it.
	ErrSessionMismatch = errors.New("token session mismatch")
	// ErrTokenRevoked indicates the token parsed and matched its session
	// but the registry no longer considers it valid (revoked or swept).
	ErrTokenRevoked = errors.New("token revoked or expired")
)

// SessionChecker validates a presented capability token against both
// its signature (via Verifier) and its live state in the Registry,
// and confirms it is bound to the expected session. Satisfies
// signaling.TokenChecker.
type SessionChecker struct {
	verifier *Verifier
	registry *Registry
}

// NewSessionChecker creates a SessionChecker.
func NewSessionChecker(verifier *Verifier, registry *Registry) *SessionChecker {
	return &SessionChecker{verifier: verifier, registry: registry}
}

// Check verifies tokenString's signature and expiry, that its sid
// claim equals expectedSessionID, and that the registry still
// considers the token valid.
func (c *SessionChecker) Check(tokenString, expectedSessionID string) error {
	claims, err := c.verifier.Verify(tokenString)
	if err != nil {
		return err
	}
	if claims.SessionID != expectedSessionID {
		return ErrSessionMismatch
	}
	if !c.registry.IsValid(claims.TokenID) {
		return ErrTokenRevoked
	}
	return nil
}
