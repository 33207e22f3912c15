// Package automaton implements C4: a serialized Aho-Corasick automaton over
// the byte alphabet, with an overlapping-match iterator. It is a thin
// wrapper around github.com/pgavlin/aho-corasick, a double-array
// Aho-Corasick implementation that already gives pattern-index-as-value
// semantics and a native overlapping iterator (IterOverlappingByte) — the
// two properties spec section 4.4 requires of the automaton.
//
// The library does not expose the raw double-array transition table, so
// Serialize/Deserialize round-trip the byte-encoded pattern list (gob
// encoded) instead of a raw blob. Because Build is deterministic — the
// i-th input pattern always receives value i — reconstructing from the
// pattern list reproduces the exact same automaton, preserving every
// externally observable guarantee at the cost of a rebuild instead of a
// zero-copy blob load.
package automaton

import (
	"bytes"
	"encoding/gob"

	ac "github.com/pgavlin/aho-corasick"

	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
)

// Hit is one raw occurrence reported by the automaton: the pattern index
// (the value assigned at build time) and the half-open byte range it
// matched in the haystack.
type Hit struct {
	Value     int
	ByteStart int
	ByteEnd   int
}

// Automaton is a built, searchable multi-pattern matcher over bytes.
type Automaton struct {
	ac       ac.AhoCorasick
	patterns [][]byte // retained for Serialize; not needed for matching
}

// Build constructs an automaton from byte-encoded patterns. The i-th
// pattern in patterns receives value i, returned by FindOverlappingIter on
// any match against it.
func Build(patterns [][]byte) (*Automaton, error) {
	if len(patterns) == 0 {
		return nil, matcherrors.New(matcherrors.Usage, "automaton: at least one pattern is required")
	}
	builder := ac.NewAhoCorasickBuilder()
	built := builder.BuildByte(patterns)
	return &Automaton{ac: built, patterns: patterns}, nil
}

// NumPatterns returns the number of patterns the automaton was built from.
func (a *Automaton) NumPatterns() int {
	return len(a.patterns)
}

// Iterator lazily yields every overlapping match in haystack, in the
// automaton's native order: ascending byte_end, and for equal byte_end,
// the order the underlying engine resolves output links in (shortest
// suffix pattern last at a given end position). Callers needing a
// different deterministic order (e.g. by start) must sort explicitly —
// the overlap resolver in internal/match does exactly that.
type Iterator struct {
	it ac.Iter
}

// Next returns the next hit, or (Hit{}, false) when exhausted.
func (it *Iterator) Next() (Hit, bool) {
	m := it.it.Next()
	if m == nil {
		return Hit{}, false
	}
	return Hit{Value: m.Pattern(), ByteStart: m.Start(), ByteEnd: m.End()}, true
}

// FindOverlappingIter returns an iterator over every matching pattern
// occurrence in haystack, including overlapping and contained matches.
// Overlap resolution is not performed here — see internal/match.
func (a *Automaton) FindOverlappingIter(haystack []byte) *Iterator {
	return &Iterator{it: a.ac.IterOverlappingByte(haystack)}
}

// gobPayload is the on-disk shape of Serialize's output.
type gobPayload struct {
	Patterns [][]byte
}

// Serialize produces a self-contained blob from which Deserialize can
// reconstruct an equivalent automaton (same pattern-to-value assignment,
// same match behavior).
func (a *Automaton) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobPayload{Patterns: a.patterns}); err != nil {
		return nil, matcherrors.Wrap(matcherrors.Format, "automaton serialize", err)
	}
	return buf.Bytes(), nil
}

// Deserialize reconstructs an automaton from a Serialize blob. The blob is
// trusted — it was produced by a sibling Build/Serialize call and is
// content-addressed by the manifest version — so no structural validation
// beyond successful gob decoding is performed.
func Deserialize(blob []byte) (*Automaton, error) {
	var payload gobPayload
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&payload); err != nil {
		return nil, matcherrors.Wrap(matcherrors.Format, "automaton deserialize", err)
	}
	return Build(payload.Patterns)
}
