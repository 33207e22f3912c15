// Package hostbind adapts a loaded matcher.Matcher to the host-language
// value shapes C8 describes: plain token-id slices and policy name strings
// in, plain match records out. It exists so an embedding Go process never
// has to import internal/match or internal/payload directly.
package hostbind

import (
	"github.com/praetorian-labs/phrasematch/internal/match"
	"github.com/praetorian-labs/phrasematch/internal/matcher"
)

// MatchRecord is one resolved match, flattened to the fields a host caller
// needs: token offsets plus the full payload.
type MatchRecord struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	PhraseID uint32  `json:"phrase_id"`
	Salience float32 `json:"salience"`
	Count    uint32  `json:"count"`
	N        uint8   `json:"n"`
}

// Binding wraps a loaded Matcher for host-language calls.
type Binding struct {
	m *matcher.Matcher
}

// New wraps an already-loaded Matcher.
func New(m *matcher.Matcher) *Binding {
	return &Binding{m: m}
}

// Match resolves overlaps under the named policy and returns at most max
// records in ascending start order. An unrecognized policy name is a usage
// error, per spec 4.5's ParsePolicy.
func (b *Binding) Match(tokenIDs []uint32, policyName string, max uint32) ([]MatchRecord, error) {
	policy, err := match.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}

	resolved := b.m.MatchTokens(tokenIDs, policy, max)
	if len(resolved) == 0 {
		return nil, nil
	}

	out := make([]MatchRecord, len(resolved))
	for i, r := range resolved {
		out[i] = MatchRecord{
			Start:    r.Start,
			End:      r.End,
			PhraseID: r.Payload.PhraseID,
			Salience: r.Payload.Salience,
			Count:    r.Payload.Count,
			N:        r.Payload.N,
		}
	}
	return out, nil
}

// Stats exposes the underlying matcher's observability snapshot.
func (b *Binding) Stats() matcher.Stats {
	return b.m.Stats()
}

// Healthcheck reports whether the bound matcher loaded successfully.
func (b *Binding) Healthcheck() bool {
	return b.m.Healthcheck()
}

// Close releases resources (e.g. an mmap) the bound matcher holds.
func (b *Binding) Close() error {
	return b.m.Close()
}
