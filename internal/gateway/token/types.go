// Package token issues and tracks capability tokens: short-lived,
// Ed25519-signed JWTs scoped to a single session.
package token

import "time"

// Entry is the registry's record for one issued token.
type Entry struct {
	TokenID     string
	SessionID   string
	OperatorDID string
	RobotID     string
	ExpiresAt   time.Time
	Revoked     bool
}

// Claims mirrors the wire claim names in the capability token JWT.
type Claims struct {
	Issuer      string
	Subject     string // operator_did
	Audience    string // robot_id
	IssuedAt    time.Time
	ExpiresAt   time.Time
	TokenID     string // jti
	SessionID   string // sid
	Scope       []string
	MaxRateHz   float64
	MaxBurst    int
}
