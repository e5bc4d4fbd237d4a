// Package check holds the construction-time precondition checks shared by
// every covenant constructor and codec. Each check returns an INVALID_PARAM
// fault naming the field, the expectation, and the observed value. Spend-time
// rules are the engine's job, never this package's.
package check

import (
	"lattice/fault"
)

// ExactLen requires b to be exactly want bytes long.
func ExactLen(field string, b []byte, want int) error {
	if len(b) != want {
		return fault.InvalidParamf("%s: got %d bytes, want %d", field, len(b), want)
	}
	return nil
}

// Positive requires v to be strictly greater than zero.
func Positive(field string, v uint64) error {
	if v == 0 {
		return fault.InvalidParamf("%s: got 0, want > 0", field)
	}
	return nil
}

// Positive32 requires v to be strictly greater than zero.
func Positive32(field string, v uint32) error {
	if v == 0 {
		return fault.InvalidParamf("%s: got 0, want > 0", field)
	}
	return nil
}

// Ordered requires lo < hi strictly. Equal values fail: a zero-width window
// is a configuration mistake, not a degenerate case.
func Ordered(field string, lo, hi uint64) error {
	if lo >= hi {
		return fault.InvalidParamf("%s: got %d >= %d, want strict ascending order", field, lo, hi)
	}
	return nil
}

// Range requires lo <= v <= hi inclusive.
func Range(field string, v, lo, hi uint64) error {
	if v < lo || v > hi {
		return fault.InvalidParamf("%s: got %d, want in [%d, %d]", field, v, lo, hi)
	}
	return nil
}

// NonEmpty requires at least one element.
func NonEmpty(field string, n int) error {
	if n == 0 {
		return fault.InvalidParamf("%s: got 0 elements, want at least 1", field)
	}
	return nil
}
