package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chainkvm/teleop/internal/gateway/policy"
	"github.com/chainkvm/teleop/internal/gateway/revocation"
	"github.com/chainkvm/teleop/internal/gateway/session"
)

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keys.JWKSDocument())
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_credential", "", "")
		return
	}

	cred, err := policy.ParseCredential(req.VCOrVP.Issuer, req.VCOrVP.Subject, req.VCOrVP.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_credential", "", "")
		return
	}
	if req.RobotID == "" || req.OperatorDID == "" {
		writeError(w, http.StatusBadRequest, "invalid_credential", "", "")
		return
	}

	bundle, err := h.sessions.CreateSession(session.CreateRequest{
		RobotID:        req.RobotID,
		OperatorDID:    req.OperatorDID,
		Credential:     cred,
		RequestedScope: req.RequestedScope,
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       bundle.SessionID,
		CapabilityToken: bundle.CapabilityToken,
		SignalingURL:    bundle.SignalingURL,
		ICEServers:      bundle.ICEServers,
		ExpiresAt:       bundle.ExpiresAt.UTC().Format(time.RFC3339),
		EffectiveScope:  bundle.EffectiveScope,
		Limits:          bundle.Limits,
		Policy: policyRefResponse{
			PolicyID: bundle.Policy.ID,
			Version:  bundle.Policy.Version,
			Hash:     bundle.Policy.Hash,
		},
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.sessions.Get(id)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionRecordResponse{
		SessionID:      rec.SessionID,
		RobotID:        rec.RobotID,
		OperatorDID:    rec.OperatorDID,
		State:          string(rec.State),
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:      rec.ExpiresAt.UTC().Format(time.RFC3339),
		EffectiveScope: rec.EffectiveScope,
		Limits:         rec.Limits,
	})
}

func (h *Handler) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Terminate(id); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	bearer := bearerToken(r)
	if bearer == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "")
		return
	}
	claims, err := h.verifier.Verify(bearer)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "")
		return
	}

	bundle, err := h.sessions.Refresh(id, claims.TokenID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:       bundle.SessionID,
		CapabilityToken: bundle.CapabilityToken,
		SignalingURL:    bundle.SignalingURL,
		ICEServers:      bundle.ICEServers,
		ExpiresAt:       bundle.ExpiresAt.UTC().Format(time.RFC3339),
		EffectiveScope:  bundle.EffectiveScope,
		Limits:          bundle.Limits,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "", "")
		return
	}
	if req.SessionID == "" && req.OperatorDID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "", "")
		return
	}

	result, err := h.revocations.Revoke(revocation.Request{
		SessionID:   req.SessionID,
		OperatorDID: req.OperatorDID,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "", "")
		return
	}

	writeJSON(w, http.StatusCreated, revokeResponse{
		RevocationID:     uuid.NewString(),
		AffectedSessions: result.AffectedSessions,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}

// requireAdmin gates admin-only routes behind X-Admin-API-Key, compared
// in constant time to avoid leaking key material through timing.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-Admin-API-Key")
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	var denied *session.PolicyDeniedError
	switch {
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, "policy_denied", denied.Reason, denied.MatchedRule)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "", "")
	case errors.Is(err, session.ErrSessionNotActive):
		writeError(w, http.StatusConflict, "session_not_active", "", "")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", "", "")
	case errors.Is(err, session.ErrTokenGeneratorUnset):
		writeError(w, http.StatusInternalServerError, "token_generator_not_configured", "", "")
	case errors.Is(err, session.ErrPolicyNotConfigured):
		writeError(w, http.StatusInternalServerError, "policy_not_configured", "", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "", "")
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, reason, matchedRule string) {
	writeJSON(w, status, errorResponse{Error: code, Reason: reason, Matched: matchedRule})
}
