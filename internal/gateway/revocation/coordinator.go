// Package revocation implements the gateway's session/operator
// revocation path: mark the session manager's record revoked, revoke
// its tokens, tear down its signaling room, and audit the event —
// in a fixed lock order so a racing CreateSession/Refresh can never
// observe a half-revoked session.
package revocation

import (
	"time"

	"github.com/google/uuid"

	"github.com/chainkvm/teleop/internal/gateway/audit"
)

// SessionStore is the subset of session.Manager the coordinator needs.
// RobotIDOf is a narrow accessor (rather than returning session.Record
// directly) so this package doesn't need to import the session
// package's full surface.
type SessionStore interface {
	MarkRevoked(sessionID string) bool
	SessionsByOperator(operatorDID string) []string
	RobotIDOf(sessionID string) (string, error)
}

// TokenRevoker is the subset of token.Registry the coordinator needs.
type TokenRevoker interface {
	RevokeBySession(sessionID string) int
}

// RoomRevoker is the subset of signaling.Hub the coordinator needs.
type RoomRevoker interface {
	Revoke(sessionID, reason string)
}

// AuditSink enqueues the terminal audit event for a revocation.
type AuditSink interface {
	Enqueue(e audit.Event)
}

// Timestamps captures the timing of a single revocation's phases, for
// an external metrics collector to record; the coordinator passes them
// to its MetricsHook when one is set and skips the call when it is nil.
type Timestamps struct {
	SessionID string
	Start     time.Time
	Committed time.Time
	Broadcast time.Time
	Audited   time.Time
}

// MetricsHook receives a revocation's timestamps once it completes.
type MetricsHook func(Timestamps)

// Request describes who to revoke: either a single session or every
// session belonging to an operator.
type Request struct {
	SessionID   string
	OperatorDID string
	Reason      string
}

// Result reports which sessions were actually affected.
type Result struct {
	AffectedSessions []string
}

// Coordinator sequences a revocation across the session manager, token
// registry, and signaling hub, in the fixed order session -> token ->
// room required by the cross-component lock ordering.
type Coordinator struct {
	sessions SessionStore
	tokens   TokenRevoker
	rooms    RoomRevoker
	audit    AuditSink
	hook     MetricsHook
}

// NewCoordinator creates a Coordinator. hook may be nil.
func NewCoordinator(sessions SessionStore, tokens TokenRevoker, rooms RoomRevoker, auditSink AuditSink, hook MetricsHook) *Coordinator {
	return &Coordinator{sessions: sessions, tokens: tokens, rooms: rooms, audit: auditSink, hook: hook}
}

// Revoke processes a revocation request. It is idempotent: revoking an
// already-revoked or unknown session affects nothing and returns no
// error.
func (c *Coordinator) Revoke(req Request) (Result, error) {
	sessionIDs := c.targetSessions(req)

	result := Result{AffectedSessions: make([]string, 0, len(sessionIDs))}
	for _, sid := range sessionIDs {
		if c.revokeOne(sid, req.Reason) {
			result.AffectedSessions = append(result.AffectedSessions, sid)
		}
	}
	return result, nil
}

func (c *Coordinator) targetSessions(req Request) []string {
	if req.SessionID != "" {
		return []string{req.SessionID}
	}
	if req.OperatorDID != "" {
		return c.sessions.SessionsByOperator(req.OperatorDID)
	}
	return nil
}

func (c *Coordinator) revokeOne(sessionID, reason string) bool {
	ts := Timestamps{SessionID: sessionID, Start: time.Now()}

	robotID, err := c.sessions.RobotIDOf(sessionID)
	if err != nil {
		return false
	}

	if !c.sessions.MarkRevoked(sessionID) {
		return false
	}
	ts.Committed = time.Now()

	c.tokens.RevokeBySession(sessionID)

	c.rooms.Revoke(sessionID, reason)
	ts.Broadcast = time.Now()

	if c.audit != nil {
		c.audit.Enqueue(audit.Event{
			SchemaVersion: 1,
			EventID:       uuid.NewString(),
			EventType:     audit.EventSessionRevoked,
			SessionID:     sessionID,
			RobotID:       robotID,
			Timestamp:     time.Now().UTC(),
			Metadata:      map[string]string{"reason": reason},
		})
	}
	ts.Audited = time.Now()

	if c.hook != nil {
		c.hook(ts)
	}
	return true
}
