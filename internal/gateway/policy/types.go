// Package policy implements deterministic rule evaluation for session
// creation: first-match-wins over an ordered rule list, default-deny.
package policy

import "time"

// Effect is the outcome a rule or snapshot default applies.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Limits bounds the control rate a session is granted.
type Limits struct {
	MaxControlRateHz float64 `json:"max_control_rate_hz"`
	MaxBurst         int     `json:"max_burst"`
}

// Rule matches a requester/resource/action/time window to an effect.
type Rule struct {
	Name           string   `json:"name"`
	Role           string   `json:"role,omitempty"`
	Resource       string   `json:"resource,omitempty"`
	AllowedActions []string `json:"allowed_actions"`
	Effect         Effect   `json:"effect"`
	Limits         Limits   `json:"limits"`
	WindowStart    string   `json:"window_start,omitempty"` // "HH:MM", empty = unbounded
	WindowEnd      string   `json:"window_end,omitempty"`
}

// Snapshot is an immutable, versioned policy document. ContentHash is
// computed once by NewSnapshot (which Load calls) and carried in every
// decision it produces.
type Snapshot struct {
	ID          string `json:"id"`
	Version     int    `json:"version"`
	ContentHash string `json:"hash"`
	Rules       []Rule `json:"rules"`
	Default     Effect `json:"default"`
}

// Credential is the parsed form of a presented verifiable credential/
// presentation; the core only trusts {issuer,subject,role} from it.
type Credential struct {
	Issuer  string
	Subject string
	Role    string
}

// Context is the pure input to Evaluate; never persisted.
type Context struct {
	Credential Credential
	Resource   string
	Requested  []string
	Time       time.Time
}

// PolicyRef identifies which snapshot produced a decision.
type PolicyRef struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Hash    string `json:"hash"`
}

// Decision is the result of evaluating a context against a snapshot.
type Decision struct {
	Effect         Effect   `json:"decision"`
	EffectiveScope []string `json:"effective_scope"`
	Limits         Limits   `json:"limits"`
	MatchedRule    string   `json:"matched_rule,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Policy         PolicyRef `json:"policy"`
}

// Allowed reports whether the decision grants any scope at all.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow && len(d.EffectiveScope) > 0
}
