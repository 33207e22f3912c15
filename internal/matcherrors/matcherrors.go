// Package matcherrors defines the error taxonomy callers can branch on:
// I/O, format, invariant, and usage errors, per the propagation policy in
// spec section 7.
package matcherrors

import "fmt"

// Category sentinels. Wrap one of these with fmt.Errorf("...: %w", ...) so
// callers can test with errors.Is(err, matcherrors.IO) and friends.
var (
	// IO marks a missing file or a read/write failure.
	IO = category("i/o error")
	// Format marks a JSON parse failure, a truncated binary record, or an
	// automaton deserialize failure.
	Format = category("format error")
	// Invariant marks a violated data-model invariant (zero separator id,
	// payload/manifest count mismatch, duplicate phrase id, separator id
	// appearing inside a pattern).
	Invariant = category("invariant violation")
	// Usage marks a caller error: unknown policy string, matcher not
	// loaded, or a max value outside the implementation bound.
	Usage = category("usage error")
)

type category string

func (c category) Error() string { return string(c) }

// Wrap annotates err with a category sentinel and a descriptive message
// naming the offending file or field. The returned error satisfies
// errors.Is(err, cat).
func Wrap(cat error, field string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", field, cat)
	}
	return fmt.Errorf("%s: %w: %w", field, err, cat)
}

// New builds a category error from a formatted message without an
// underlying cause.
func New(cat error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), cat)
}
