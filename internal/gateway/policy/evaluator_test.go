package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_DefaultDenyNoRules(t *testing.T) {
	snap, err := NewSnapshot("default-deny", 1, nil, EffectDeny)
	require.NoError(t, err)

	ctx := Context{
		Credential: Credential{Issuer: "did:key:issuer", Subject: "did:key:abc", Role: "operator"},
		Time:       time.Now(),
	}

	d := Evaluate(snap, ctx, []string{"teleop:control"})
	assert.Equal(t, EffectDeny, d.Effect)
	assert.Equal(t, "empty_scope", d.Reason)
	assert.Empty(t, d.EffectiveScope)
}

func TestEvaluate_AllowRuleScopeIntersection(t *testing.T) {
	rules := []Rule{
		{
			Name:           "operator-control",
			Role:           "operator",
			AllowedActions: []string{"teleop:view", "teleop:control"},
			Effect:         EffectAllow,
			Limits:         Limits{MaxControlRateHz: 50, MaxBurst: 10},
		},
	}
	snap, err := NewSnapshot("p1", 1, rules, EffectDeny)
	require.NoError(t, err)

	ctx := Context{
		Credential: Credential{Issuer: "did:key:issuer", Subject: "did:key:abc", Role: "operator"},
		Time:       time.Now(),
	}

	d := Evaluate(snap, ctx, []string{"teleop:view", "teleop:control", "teleop:estop"})
	assert.True(t, d.Allowed())
	assert.ElementsMatch(t, []string{"teleop:view", "teleop:control"}, d.EffectiveScope)
	assert.Equal(t, "operator-control", d.MatchedRule)
	assert.Equal(t, 50.0, d.Limits.MaxControlRateHz)
}

func TestEvaluate_FirstMatchWinsDenyBeatsLaterAllow(t *testing.T) {
	rules := []Rule{
		{Name: "deny-all", Role: "operator", Effect: EffectDeny},
		{Name: "allow-all", Role: "operator", AllowedActions: []string{"teleop:control"}, Effect: EffectAllow},
	}
	snap, err := NewSnapshot("p2", 1, rules, EffectDeny)
	require.NoError(t, err)

	ctx := Context{Credential: Credential{Role: "operator"}, Time: time.Now()}
	d := Evaluate(snap, ctx, []string{"teleop:control"})

	assert.Equal(t, EffectDeny, d.Effect)
	assert.Equal(t, "deny-all", d.MatchedRule)
}

func TestEvaluate_RoleMismatchFallsThroughToDefault(t *testing.T) {
	rules := []Rule{
		{Name: "operator-only", Role: "operator", AllowedActions: []string{"teleop:control"}, Effect: EffectAllow},
	}
	snap, err := NewSnapshot("p3", 1, rules, EffectDeny)
	require.NoError(t, err)

	ctx := Context{Credential: Credential{Role: "viewer"}, Time: time.Now()}
	d := Evaluate(snap, ctx, []string{"teleop:control"})

	assert.Equal(t, EffectDeny, d.Effect)
	assert.Empty(t, d.MatchedRule)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	rules := []Rule{
		{Name: "r1", Role: "operator", AllowedActions: []string{"teleop:control", "teleop:view"}, Effect: EffectAllow},
	}
	snap, err := NewSnapshot("p4", 2, rules, EffectDeny)
	require.NoError(t, err)

	ctx := Context{Credential: Credential{Role: "operator"}, Time: time.Unix(0, 0)}

	d1 := Evaluate(snap, ctx, []string{"teleop:control"})
	d2 := Evaluate(snap, ctx, []string{"teleop:control"})

	assert.Equal(t, d1, d2)
	assert.Equal(t, d1.Policy.Hash, d2.Policy.Hash)
}

func TestNewSnapshot_HashStableAcrossRebuild(t *testing.T) {
	rules := []Rule{
		{Name: "r1", Role: "operator", AllowedActions: []string{"teleop:control"}, Effect: EffectAllow},
	}
	s1, err := NewSnapshot("p5", 1, rules, EffectDeny)
	require.NoError(t, err)
	s2, err := NewSnapshot("p5", 1, rules, EffectDeny)
	require.NoError(t, err)

	assert.Equal(t, s1.ContentHash, s2.ContentHash)
}

func TestParseCredential_RejectsMissingFields(t *testing.T) {
	_, err := ParseCredential("", "did:key:abc", "operator")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
