// Package match implements C5: the Match record and the three
// overlap-resolution policies that turn raw automaton hits into a
// resolved, non-overlapping span list.
package match

import (
	"sort"

	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
	"github.com/praetorian-labs/phrasematch/internal/payload"
)

// Policy selects an overlap-resolution strategy.
type Policy int

// Supported policies.
const (
	// LeftmostLongest groups matches by their smallest remaining start and
	// keeps the longest among them.
	LeftmostLongest Policy = iota
	// LeftmostFirst keeps the first match (in automaton-produced order,
	// after stable sort-by-start) whose start is not yet covered.
	LeftmostFirst
	// SalienceMax groups overlapping matches into connected components and
	// keeps the one with the greatest derived salience score.
	SalienceMax
)

// ParsePolicy maps a host-binding policy string onto a Policy. Any other
// value is a usage error.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "leftmost_longest":
		return LeftmostLongest, nil
	case "leftmost_first":
		return LeftmostFirst, nil
	case "salience_max":
		return SalienceMax, nil
	default:
		return 0, matcherrors.New(matcherrors.Usage, "unknown policy %q", s)
	}
}

// Match is one resolved (or candidate, pre-resolution) occurrence.
type Match struct {
	Start        int // inclusive token offset
	End          int // exclusive token offset
	PatternIndex int
	Payload      payload.Record
}

// candidate is an alias of Match. It carries no arrival-order field:
// Resolve's sort.SliceStable keeps the automaton's order among equal
// starts, which is what LeftmostFirst relies on.
type candidate = Match

// Resolve sorts matches by start ascending (stable, preserving the
// automaton's relative order among equal starts) and applies policy,
// returning a non-overlapping sequence in ascending start order.
func Resolve(matches []Match, policy Policy) []Match {
	if len(matches) == 0 {
		return nil
	}
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	switch policy {
	case LeftmostLongest:
		return resolveLeftmostLongest(sorted)
	case LeftmostFirst:
		return resolveLeftmostFirst(sorted)
	case SalienceMax:
		return resolveSalienceMax(sorted)
	default:
		return resolveLeftmostLongest(sorted)
	}
}

// overlaps reports whether half-open intervals [a.Start,a.End) and
// [b.Start,b.End) overlap.
func overlaps(a, b candidate) bool {
	return a.Start < b.End && b.Start < a.End
}

// resolveLeftmostLongest implements spec 4.5's leftmost_longest: among all
// matches sharing the smallest remaining start, pick the greatest end
// (ties broken by greatest pattern index), advance past it, and discard
// any match whose start is now behind the cursor.
func resolveLeftmostLongest(sorted []Match) []Match {
	var out []Match
	cursor := 0
	i := 0
	for i < len(sorted) {
		if sorted[i].Start < cursor {
			i++
			continue
		}
		groupStart := sorted[i].Start
		best := sorted[i]
		j := i + 1
		for j < len(sorted) && sorted[j].Start == groupStart {
			if sorted[j].End > best.End || (sorted[j].End == best.End && sorted[j].PatternIndex > best.PatternIndex) {
				best = sorted[j]
			}
			j++
		}
		out = append(out, best)
		cursor = best.End
		i = j
	}
	return out
}

// resolveLeftmostFirst implements spec 4.5's leftmost_first: scan in
// sorted (start-ascending, arrival-order-preserving) order, accept any
// match whose start is not yet covered, advance the cursor to its end.
func resolveLeftmostFirst(sorted []Match) []Match {
	var out []Match
	cursor := 0
	for _, m := range sorted {
		if m.Start < cursor {
			continue
		}
		out = append(out, m)
		cursor = m.End
	}
	return out
}

// resolveSalienceMax implements spec 4.5's salience_max: group consecutive
// overlapping matches into a connected component, keep the greatest
// derived score (ties: greater n, then smaller start, then smaller
// pattern index), then resume at the first match starting at or after the
// winner's end, which may still lie inside the same component.
func resolveSalienceMax(sorted []Match) []Match {
	var out []Match
	i := 0
	for i < len(sorted) {
		// Grow the component: matches that overlap the running component
		// span [compStart, compEnd).
		compEnd := sorted[i].End
		j := i + 1
		for j < len(sorted) && sorted[j].Start < compEnd {
			if sorted[j].End > compEnd {
				compEnd = sorted[j].End
			}
			j++
		}

		best := sorted[i]
		bestScore := best.Payload.DerivedScore()
		for k := i + 1; k < j; k++ {
			m := sorted[k]
			score := m.Payload.DerivedScore()
			switch {
			case score > bestScore:
				best, bestScore = m, score
			case score == bestScore && m.Payload.N > best.Payload.N:
				best, bestScore = m, score
			case score == bestScore && m.Payload.N == best.Payload.N && m.Start < best.Start:
				best, bestScore = m, score
			case score == bestScore && m.Payload.N == best.Payload.N && m.Start == best.Start && m.PatternIndex < best.PatternIndex:
				best, bestScore = m, score
			}
		}
		out = append(out, best)

		// Advance to the first match starting at or after best.End,
		// regardless of whether it falls inside [i,j) or beyond it. If no
		// such match exists, every remaining match overlaps best and the
		// scan is done.
		next := len(sorted)
		for k := i; k < len(sorted); k++ {
			if sorted[k].Start >= best.End {
				next = k
				break
			}
		}
		i = next
	}
	return out
}

// NonOverlapping reports whether matches (assumed sorted by Start) contain
// no overlapping pair, per spec 4.5's half-open interval definition. Used
// by tests; not part of the resolution hot path.
func NonOverlapping(matches []Match) bool {
	for i := 1; i < len(matches); i++ {
		if overlaps(matches[i-1], matches[i]) {
			return false
		}
	}
	return true
}
