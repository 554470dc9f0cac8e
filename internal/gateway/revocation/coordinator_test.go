package revocation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainkvm/teleop/internal/gateway/audit"
)

type stubSessions struct {
	robotID   map[string]string
	revoked   map[string]bool
	byOperator map[string][]string
}

func newStubSessions() *stubSessions {
	return &stubSessions{robotID: make(map[string]string), revoked: make(map[string]bool), byOperator: make(map[string][]string)}
}

func (s *stubSessions) MarkRevoked(sessionID string) bool {
	if s.revoked[sessionID] {
		return false
	}
	if _, ok := s.robotID[sessionID]; !ok {
		return false
	}
	s.revoked[sessionID] = true
	return true
}

func (s *stubSessions) SessionsByOperator(operatorDID string) []string {
	return s.byOperator[operatorDID]
}

func (s *stubSessions) RobotIDOf(sessionID string) (string, error) {
	rid, ok := s.robotID[sessionID]
	if !ok {
		return "", errors.New("not found")
	}
	return rid, nil
}

type stubTokens struct {
	revokedSessions []string
}

func (t *stubTokens) RevokeBySession(sessionID string) int {
	t.revokedSessions = append(t.revokedSessions, sessionID)
	return 1
}

type stubRooms struct {
	revoked []string
}

func (r *stubRooms) Revoke(sessionID, reason string) {
	r.revoked = append(r.revoked, sessionID)
}

type stubAudit struct {
	events []audit.Event
}

func (a *stubAudit) Enqueue(e audit.Event) { a.events = append(a.events, e) }

func TestCoordinator_RevokeBySessionID(t *testing.T) {
	sessions := newStubSessions()
	sessions.robotID["s1"] = "r1"
	tokens := &stubTokens{}
	rooms := &stubRooms{}
	auditSink := &stubAudit{}

	var captured Timestamps
	coord := NewCoordinator(sessions, tokens, rooms, auditSink, func(ts Timestamps) { captured = ts })

	result, err := coord.Revoke(Request{SessionID: "s1", Reason: "policy_change"})
	require.NoError(t, err)

	assert.Equal(t, []string{"s1"}, result.AffectedSessions)
	assert.True(t, sessions.revoked["s1"])
	assert.Equal(t, []string{"s1"}, tokens.revokedSessions)
	assert.Equal(t, []string{"s1"}, rooms.revoked)
	require.Len(t, auditSink.events, 1)
	assert.Equal(t, audit.EventSessionRevoked, auditSink.events[0].EventType)
	assert.Equal(t, "s1", captured.SessionID)
	assert.False(t, captured.Committed.IsZero())
}

func TestCoordinator_RevokeByOperator_AffectsAllSessions(t *testing.T) {
	sessions := newStubSessions()
	sessions.robotID["s1"] = "r1"
	sessions.robotID["s2"] = "r2"
	sessions.byOperator["did:op"] = []string{"s1", "s2"}

	coord := NewCoordinator(sessions, &stubTokens{}, &stubRooms{}, &stubAudit{}, nil)

	result, err := coord.Revoke(Request{OperatorDID: "did:op", Reason: "operator_ban"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, result.AffectedSessions)
}

func TestCoordinator_Idempotent(t *testing.T) {
	sessions := newStubSessions()
	sessions.robotID["s1"] = "r1"
	tokens := &stubTokens{}
	coord := NewCoordinator(sessions, tokens, &stubRooms{}, &stubAudit{}, nil)

	_, err := coord.Revoke(Request{SessionID: "s1", Reason: "first"})
	require.NoError(t, err)

	result, err := coord.Revoke(Request{SessionID: "s1", Reason: "second"})
	require.NoError(t, err)
	assert.Empty(t, result.AffectedSessions)
	// tokens.RevokeBySession was only ever called once, on the first revoke
	assert.Len(t, tokens.revokedSessions, 1)
}

func TestCoordinator_UnknownSessionIsNoopNoError(t *testing.T) {
	coord := NewCoordinator(newStubSessions(), &stubTokens{}, &stubRooms{}, &stubAudit{}, nil)

	result, err := coord.Revoke(Request{SessionID: "nope", Reason: "x"})
	require.NoError(t, err)
	assert.Empty(t, result.AffectedSessions)
}

func TestCoordinator_EmptyRequestAffectsNothing(t *testing.T) {
	coord := NewCoordinator(newStubSessions(), &stubTokens{}, &stubRooms{}, &stubAudit{}, nil)

	result, err := coord.Revoke(Request{Reason: "x"})
	require.NoError(t, err)
	assert.Empty(t, result.AffectedSessions)
}
