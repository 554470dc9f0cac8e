package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainkvm/teleop/internal/gateway/audit"
	"github.com/chainkvm/teleop/internal/gateway/policy"
	"github.com/chainkvm/teleop/internal/gateway/token"
)

// TokenIssuer mints capability tokens. Satisfied by *token.Issuer.
type TokenIssuer interface {
	Issue(req token.IssueRequest) (tokenString, tokenID string, expiresAt time.Time, err error)
}

// TokenRegistry tracks issued tokens. Satisfied by *token.Registry.
type TokenRegistry interface {
	Register(e token.Entry)
	Get(tokenID string) (token.Entry, bool)
	IsValid(tokenID string) bool
	RevokeBySession(sessionID string) int
}

// AuditSink enqueues lifecycle events. Satisfied by *audit.Queue.
type AuditSink interface {
	Enqueue(e audit.Event)
}

// Manager owns the process-wide session table. State mutations only
// happen here or in the revocation coordinator, and only move forward:
// pending -> active -> terminated, or * -> revoked.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Record

	policySnapshot *policy.Snapshot
	issuer         TokenIssuer
	registry       TokenRegistry
	auditSink      AuditSink
	signalingURL   string
	iceServers     []ICEServer
	logger         *zap.Logger
}

// NewManager creates a session manager bound to a policy snapshot, token
// issuer/registry, and audit sink.
func NewManager(snapshot *policy.Snapshot, issuer TokenIssuer, registry TokenRegistry, auditSink AuditSink, signalingURL string, iceServers []ICEServer, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:       make(map[string]*Record),
		policySnapshot: snapshot,
		issuer:         issuer,
		registry:       registry,
		auditSink:      auditSink,
		signalingURL:   signalingURL,
		iceServers:     iceServers,
		logger:         logger,
	}
}

// IsOpen reports whether a session is in {pending, active}; wired into
// the token registry as its SessionOpenFunc.
func (m *Manager) IsOpen(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	return rec.State == StatePending || rec.State == StateActive
}

// CreateSession evaluates policy, issues a token, and registers a
// pending session record.
func (m *Manager) CreateSession(req CreateRequest) (Bundle, error) {
	if m.issuer == nil || m.registry == nil {
		return Bundle{}, ErrTokenGeneratorUnset
	}
	if m.policySnapshot == nil {
		return Bundle{}, ErrPolicyNotConfigured
	}

	ctx := policy.Context{
		Credential: req.Credential,
		Resource:   req.RobotID,
		Requested:  req.RequestedScope,
		Time:       time.Now(),
	}

	m.auditEvent(audit.EventSessionRequested, "", req.RobotID, req.OperatorDID, nil)

	decision := policy.Evaluate(m.policySnapshot, ctx, req.RequestedScope)
	if !decision.Allowed() {
		return Bundle{}, &PolicyDeniedError{Reason: decision.Reason, MatchedRule: decision.MatchedRule}
	}

	sessionID := uuid.NewString()
	now := time.Now()

	tokenString, tokenID, expiresAt, err := m.issuer.Issue(token.IssueRequest{
		OperatorDID: req.OperatorDID,
		RobotID:     req.RobotID,
		SessionID:   sessionID,
		Scope:       decision.EffectiveScope,
		Limits:      decision.Limits,
	})
	if err != nil {
		return Bundle{}, err
	}

	m.registry.Register(token.Entry{
		TokenID:     tokenID,
		SessionID:   sessionID,
		OperatorDID: req.OperatorDID,
		RobotID:     req.RobotID,
		ExpiresAt:   expiresAt,
	})

	rec := &Record{
		SessionID:      sessionID,
		RobotID:        req.RobotID,
		OperatorDID:    req.OperatorDID,
		State:          StatePending,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		EffectiveScope: decision.EffectiveScope,
		Limits:         decision.Limits,
	}

	m.mu.Lock()
	m.sessions[sessionID] = rec
	m.mu.Unlock()

	m.auditEvent(audit.EventSessionGranted, sessionID, req.RobotID, req.OperatorDID, map[string]string{
		"policy_hash": decision.Policy.Hash,
	})

	return Bundle{
		SessionID:       sessionID,
		CapabilityToken: tokenString,
		SignalingURL:    m.signalingURL,
		ICEServers:      m.iceServers,
		ExpiresAt:       expiresAt,
		EffectiveScope:  decision.EffectiveScope,
		Limits:          decision.Limits,
		Policy:          decision.Policy,
	}, nil
}

// RobotIDOf returns the robot_id a session is bound to, for the
// revocation coordinator's audit trail.
func (m *Manager) RobotIDOf(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return rec.RobotID, nil
}

// Get returns a copy of the session record, or ErrSessionNotFound.
func (m *Manager) Get(sessionID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	return *rec, nil
}

// Activate transitions a pending session to active (called once the
// signaling room confirms both peers have joined).
func (m *Manager) Activate(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if rec.State != StatePending {
		return ErrSessionNotActive
	}
	rec.State = StateActive
	return nil
}

// Terminate transitions any non-terminal session to terminated and
// revokes its tokens. Idempotent.
func (m *Manager) Terminate(sessionID string) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if rec.State == StateTerminated || rec.State == StateRevoked {
		m.mu.Unlock()
		return nil
	}
	rec.State = StateTerminated
	m.mu.Unlock()

	m.registry.RevokeBySession(sessionID)
	m.auditEvent(audit.EventSessionEnded, sessionID, rec.RobotID, rec.OperatorDID, nil)
	if m.logger != nil {
		m.logger.Info("session terminated", zap.String("session_id", sessionID))
	}
	return nil
}

// MarkRevoked is the authoritative commit step the revocation
// coordinator calls: it is the single place session state moves to
// StateRevoked, and it never fails. Returns false if the session was
// already terminal (revoke is then a no-op for that session).
func (m *Manager) MarkRevoked(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if rec.State == StateTerminated || rec.State == StateRevoked {
		return false
	}
	rec.State = StateRevoked
	return true
}

// SessionsByOperator returns the IDs of every non-terminal session
// belonging to an operator, used by operator-scoped revocation.
func (m *Manager) SessionsByOperator(operatorDID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for sid, rec := range m.sessions {
		if rec.OperatorDID == operatorDID && rec.State != StateTerminated && rec.State != StateRevoked {
			out = append(out, sid)
		}
	}
	return out
}

// Refresh validates the presented token, revokes the session's existing
// tokens, and issues a fresh one with an extended expiry.
func (m *Manager) Refresh(sessionID, presentedTokenID string) (Bundle, error) {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Bundle{}, ErrSessionNotFound
	}
	if rec.State != StatePending && rec.State != StateActive {
		return Bundle{}, ErrSessionNotActive
	}
	if !m.registry.IsValid(presentedTokenID) {
		return Bundle{}, ErrInvalidToken
	}

	m.registry.RevokeBySession(sessionID)

	tokenString, tokenID, expiresAt, err := m.issuer.Issue(token.IssueRequest{
		OperatorDID: rec.OperatorDID,
		RobotID:     rec.RobotID,
		SessionID:   sessionID,
		Scope:       rec.EffectiveScope,
		Limits:      rec.Limits,
	})
	if err != nil {
		return Bundle{}, err
	}

	m.registry.Register(token.Entry{
		TokenID:     tokenID,
		SessionID:   sessionID,
		OperatorDID: rec.OperatorDID,
		RobotID:     rec.RobotID,
		ExpiresAt:   expiresAt,
	})

	m.mu.Lock()
	rec.ExpiresAt = expiresAt
	m.mu.Unlock()

	return Bundle{
		SessionID:       sessionID,
		CapabilityToken: tokenString,
		SignalingURL:    m.signalingURL,
		ICEServers:      m.iceServers,
		ExpiresAt:       expiresAt,
		EffectiveScope:  rec.EffectiveScope,
		Limits:          rec.Limits,
	}, nil
}

func (m *Manager) auditEvent(t audit.EventType, sessionID, robotID, operatorDID string, metadata map[string]string) {
	if m.auditSink == nil {
		return
	}
	m.auditSink.Enqueue(audit.Event{
		SchemaVersion: 1,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		RobotID:       robotID,
		OperatorDID:   operatorDID,
		SessionID:     sessionID,
		EventType:     t,
		Metadata:      metadata,
	})
}
