// Package manifest implements the versioned artifact descriptor (C2):
// load/parse of manifest.json and cross-artifact compatibility checks.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
)

// Manifest describes one built artifact set.
type Manifest struct {
	Version           string   `json:"version"`
	Tokenizer         string   `json:"tokenizer"`
	NumPatterns       uint64   `json:"num_patterns"`
	MinCount          *uint32  `json:"min_count,omitempty"`
	SalienceThreshold *float32 `json:"salience_threshold,omitempty"`
	BuiltAt           string   `json:"built_at"`
	SeparatorID       uint32   `json:"separator_id"`
}

// Load reads and parses manifest.json at path. Unknown fields are ignored
// (json.Unmarshal's default behavior); a missing required field or a
// zero separator id is a load error.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied artifact location, not user input
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, matcherrors.Wrap(matcherrors.Format, path, err)
	}

	if err := m.validate(); err != nil {
		return nil, matcherrors.Wrap(matcherrors.Invariant, path, err)
	}
	return &m, nil
}

// validate checks the required-field and invariant conditions load-time
// parsing can catch on its own (full patterns-vs-separator checks happen
// at build time, where the patterns are in hand).
func (m *Manifest) validate() error {
	if m.Tokenizer == "" {
		return fmt.Errorf("manifest missing required field: tokenizer")
	}
	if m.BuiltAt == "" {
		return fmt.Errorf("manifest missing required field: built_at")
	}
	if m.SeparatorID == 0 {
		return fmt.Errorf("manifest separator_id must be non-zero")
	}
	return nil
}

// Save writes m as indented JSON to path.
func Save(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return matcherrors.Wrap(matcherrors.Format, path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // artifact output path, not user input
		return matcherrors.Wrap(matcherrors.IO, path, err)
	}
	return nil
}

// New builds a manifest for a freshly built artifact set.
func New(version, tokenizer string, numPatterns uint64, separatorID uint32, minCount *uint32, salienceThreshold *float32) *Manifest {
	return &Manifest{
		Version:           version,
		Tokenizer:         tokenizer,
		NumPatterns:       numPatterns,
		MinCount:          minCount,
		SalienceThreshold: salienceThreshold,
		BuiltAt:           time.Now().UTC().Format(time.RFC3339),
		SeparatorID:       separatorID,
	}
}

// ValidateCompatible fails when tokenizer or separator_id differ between
// self and other. version is informational and is not compared. This
// relation is reflexive and symmetric by construction: it only compares
// two fields for equality.
func (m *Manifest) ValidateCompatible(other *Manifest) error {
	if m.Tokenizer != other.Tokenizer {
		return fmt.Errorf("incompatible manifests: tokenizer %q != %q", m.Tokenizer, other.Tokenizer)
	}
	if m.SeparatorID != other.SeparatorID {
		return fmt.Errorf("incompatible manifests: separator_id %d != %d", m.SeparatorID, other.SeparatorID)
	}
	return nil
}
