package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// document is the on-disk shape an admin writes; Load converts it into
// an immutable, hashed Snapshot.
type document struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Default Effect `json:"default"`
	Rules   []Rule `json:"rules"`
}

// Load reads a policy document from path and builds a Snapshot with a
// freshly computed content hash. Called once at startup; reload is a
// full atomic replacement of the process-wide snapshot pointer.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	if doc.Default != EffectAllow && doc.Default != EffectDeny {
		doc.Default = EffectDeny
	}

	return NewSnapshot(doc.ID, doc.Version, doc.Rules, doc.Default)
}
