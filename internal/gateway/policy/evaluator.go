package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// Sentinel errors of the policy package. ParseCredential returns
// ErrInvalidCredential; no function in this package returns
// ErrPolicyNotConfigured.
var (
	ErrInvalidCredential  = errors.New("invalid_credential")
	ErrPolicyNotConfigured = errors.New("policy_not_configured")
)

// NewSnapshot builds a Snapshot and computes its content hash by
// canonicalizing the document (sorted keys, no insignificant whitespace)
// and hashing with SHA-256. The hash is stable across process restarts
// for byte-identical rule sets.
func NewSnapshot(id string, version int, rules []Rule, def Effect) (*Snapshot, error) {
	s := &Snapshot{ID: id, Version: version, Rules: rules, Default: def}
	hash, err := canonicalHash(s)
	if err != nil {
		return nil, err
	}
	s.ContentHash = hash
	return s, nil
}

func canonicalHash(s *Snapshot) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}

	canonical, err := canonicalize(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize re-serializes a decoded JSON value with map keys sorted at
// every level, producing a byte-stable representation.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalize(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []any:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(val)
	}
}

// Evaluate scans rules in declared order; the first matching rule fixes
// the effect. No I/O, no randomness, no clock beyond ctx.Time.
func Evaluate(snapshot *Snapshot, ctx Context, requestedScope []string) Decision {
	ref := PolicyRef{ID: snapshot.ID, Version: snapshot.Version, Hash: snapshot.ContentHash}

	for _, rule := range snapshot.Rules {
		if !ruleMatches(rule, ctx) {
			continue
		}
		return decide(rule.Effect, rule.Limits, rule.Name, requestedScope, rule.AllowedActions, ref)
	}

	return decide(snapshot.Default, Limits{}, "", requestedScope, nil, ref)
}

func decide(effect Effect, limits Limits, matchedRule string, requested, allowed []string, ref PolicyRef) Decision {
	if effect == EffectAllow {
		effective := intersect(requested, allowed)
		if len(effective) == 0 {
			return Decision{
				Effect:      EffectDeny,
				MatchedRule: matchedRule,
				Reason:      "empty_scope",
				Policy:      ref,
			}
		}

		return Decision{
			Effect:         EffectAllow,
			EffectiveScope: effective,
			Limits:         limits,
			MatchedRule:    matchedRule,
			Policy:         ref,
		}
	}

	// An explicit deny-rule match refuses outright. Falling through every
	// rule to the default effect means no rule granted any of the
	// requested scope, so that denial is reported as empty_scope rather
	// than a rule-driven deny.
	reason := "deny"
	if matchedRule == "" {
		reason = "empty_scope"
	}
	return Decision{
		Effect:      EffectDeny,
		MatchedRule: matchedRule,
		Reason:      reason,
		Policy:      ref,
	}
}

func ruleMatches(r Rule, ctx Context) bool {
	if r.Role != "" && r.Role != ctx.Credential.Role {
		return false
	}
	if r.Resource != "" && r.Resource != ctx.Resource {
		return false
	}
	if !withinWindow(r, ctx.Time) {
		return false
	}
	return true
}

func withinWindow(r Rule, t time.Time) bool {
	if r.WindowStart == "" || r.WindowEnd == "" {
		return true
	}
	start, err1 := time.Parse("15:04", r.WindowStart)
	end, err2 := time.Parse("15:04", r.WindowEnd)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := t.Hour()*60 + t.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if startMin <= endMin {
		return cur >= startMin && cur <= endMin
	}
	// window wraps midnight
	return cur >= startMin || cur <= endMin
}

func intersect(requested, allowed []string) []string {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	for _, r := range requested {
		if _, ok := set[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ParseCredential validates the minimal shape the core trusts from a
// presented verifiable credential/presentation.
func ParseCredential(issuer, subject, role string) (Credential, error) {
	if issuer == "" || subject == "" || role == "" {
		return Credential{}, ErrInvalidCredential
	}
	return Credential{Issuer: issuer, Subject: subject, Role: role}, nil
}
