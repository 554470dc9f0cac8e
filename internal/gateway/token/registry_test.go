package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_IsValid_FreshEntry(t *testing.T) {
	r := NewRegistry(5*time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(time.Hour)})

	assert.True(t, r.IsValid("t1"))
}

func TestRegistry_IsValid_UnknownToken(t *testing.T) {
	r := NewRegistry(5*time.Minute, nil)
	assert.False(t, r.IsValid("nope"))
}

func TestRegistry_IsValid_Expired(t *testing.T) {
	r := NewRegistry(5*time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(-time.Second)})

	assert.False(t, r.IsValid("t1"))
}

func TestRegistry_IsValid_SessionClosed(t *testing.T) {
	r := NewRegistry(5*time.Minute, func(sid string) bool { return false })
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(time.Hour)})

	assert.False(t, r.IsValid("t1"))
}

func TestRegistry_RevokeBySession(t *testing.T) {
	r := NewRegistry(5*time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(time.Hour)})
	r.Register(Entry{TokenID: "t2", SessionID: "s1", ExpiresAt: time.Now().Add(time.Hour)})
	r.Register(Entry{TokenID: "t3", SessionID: "s2", ExpiresAt: time.Now().Add(time.Hour)})

	count := r.RevokeBySession("s1")

	assert.Equal(t, 2, count)
	assert.False(t, r.IsValid("t1"))
	assert.False(t, r.IsValid("t2"))
	assert.True(t, r.IsValid("t3"))
}

func TestRegistry_RevokeBySession_Idempotent(t *testing.T) {
	r := NewRegistry(5*time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(time.Hour)})

	first := r.RevokeBySession("s1")
	second := r.RevokeBySession("s1")

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestRegistry_RevokeByOperator(t *testing.T) {
	r := NewRegistry(5*time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", OperatorDID: "did:key:abc", ExpiresAt: time.Now().Add(time.Hour)})
	r.Register(Entry{TokenID: "t2", SessionID: "s2", OperatorDID: "did:key:abc", ExpiresAt: time.Now().Add(time.Hour)})
	r.Register(Entry{TokenID: "t3", SessionID: "s3", OperatorDID: "did:key:other", ExpiresAt: time.Now().Add(time.Hour)})

	affected := r.RevokeByOperator("did:key:abc")

	assert.ElementsMatch(t, []string{"s1", "s2"}, affected)
	assert.True(t, r.IsValid("t3"))
}

func TestRegistry_Sweep_PurgesPastGrace(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(-2 * time.Minute)})

	purged := r.Sweep(time.Now())

	assert.Equal(t, 1, purged)
	_, ok := r.Get("t1")
	assert.False(t, ok)
}

func TestRegistry_Sweep_KeepsWithinGrace(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	r.Register(Entry{TokenID: "t1", SessionID: "s1", ExpiresAt: time.Now().Add(-30 * time.Second)})

	purged := r.Sweep(time.Now())

	assert.Equal(t, 0, purged)
}
