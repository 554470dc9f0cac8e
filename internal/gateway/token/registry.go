package token

import (
	"sync"
	"time"
)

// SessionOpenFunc reports whether a session is in a state ({pending,
// active}) that keeps its tokens usable. The registry depends on this
// instead of importing the session package, to avoid a cycle since the
// session manager itself depends on the registry for issuance.
type SessionOpenFunc func(sessionID string) bool

// Registry is the authoritative store of issued tokens. Entries are
// mutated only to flip Revoked, and purged after ExpiresAt+grace by a
// periodic sweeper — the same TTL-sweep shape the robot-side TokenCache
// uses for its read cache, applied here to the write-of-record registry.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*Entry // keyed by token_id
	bySession map[string]map[string]struct{}
	grace     time.Duration

	sessionOpen SessionOpenFunc
}

// NewRegistry creates an empty registry. sessionOpen may be nil during
// construction and set later via SetSessionOpenFunc once the session
// manager exists (the two are constructed together and reference each
// other).
func NewRegistry(grace time.Duration, sessionOpen SessionOpenFunc) *Registry {
	return &Registry{
		entries:     make(map[string]*Entry),
		bySession:   make(map[string]map[string]struct{}),
		grace:       grace,
		sessionOpen: sessionOpen,
	}
}

// SetSessionOpenFunc wires the session-state predicate after construction.
func (r *Registry) SetSessionOpenFunc(fn SessionOpenFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionOpen = fn
}

// Register records a newly issued token.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := e
	r.entries[e.TokenID] = &entry

	set, ok := r.bySession[e.SessionID]
	if !ok {
		set = make(map[string]struct{})
		r.bySession[e.SessionID] = set
	}
	set[e.TokenID] = struct{}{}
}

// IsValid reports entry ∧ ¬revoked ∧ now<expires_at ∧ session open.
func (r *Registry) IsValid(tokenID string) bool {
	r.mu.Lock()
	entry, ok := r.entries[tokenID]
	sessionOpen := r.sessionOpen
	r.mu.Unlock()

	if !ok || entry.Revoked || time.Now().After(entry.ExpiresAt) {
		return false
	}
	if sessionOpen != nil && !sessionOpen(entry.SessionID) {
		return false
	}
	return true
}

// Get returns the entry for a token_id, if present.
func (r *Registry) Get(tokenID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tokenID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// RevokeBySession flips Revoked for every entry with the given session,
// returning the count affected.
func (r *Registry) RevokeBySession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for tokenID := range r.bySession[sessionID] {
		if e, ok := r.entries[tokenID]; ok && !e.Revoked {
			e.Revoked = true
			count++
		}
	}
	return count
}

// RevokeByOperator flips Revoked for every entry belonging to the given
// operator, returning the distinct set of affected session IDs.
func (r *Registry) RevokeByOperator(operatorDID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	affected := make(map[string]struct{})
	for _, e := range r.entries {
		if e.OperatorDID == operatorDID && !e.Revoked {
			e.Revoked = true
			affected[e.SessionID] = struct{}{}
		}
	}

	out := make([]string, 0, len(affected))
	for sid := range affected {
		out = append(out, sid)
	}
	return out
}

// Sweep purges entries whose ExpiresAt+grace has passed. Intended to run
// periodically from a background goroutine (see Registry.RunSweeper).
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for tokenID, e := range r.entries {
		if now.After(e.ExpiresAt.Add(r.grace)) {
			delete(r.entries, tokenID)
			if set, ok := r.bySession[e.SessionID]; ok {
				delete(set, tokenID)
				if len(set) == 0 {
					delete(r.bySession, e.SessionID)
				}
			}
			purged++
		}
	}
	return purged
}

// RunSweeper blocks, sweeping expired entries every interval, until the
// stop channel signals done. Call with `go`.
func (r *Registry) RunSweeper(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
