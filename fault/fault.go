// Package fault defines the closed set of error kinds crossing the public
// API: parameter validation, transaction validation, and composition
// failures. One error type carries the kind, so errors.As classifies a
// failure the same way whether it was raised locally or rebuilt from an
// HTTP response.
package fault

import (
	"errors"
	"fmt"
)

// Kind tags an Error with its failure class.
type Kind string

const (
	// InvalidParam is a structural precondition failure at construction or
	// codec time: wrong length, non-positive value, bad ordering.
	InvalidParam Kind = "INVALID_PARAM"

	// ValidationFailed is a rejected transaction: a composer shape check
	// failing before any I/O, or an engine rule violation at submit time.
	ValidationFailed Kind = "VALIDATION_FAILED"

	// CompositionFailed is an engine rejection of a submitted transaction.
	// The engine's reason is preserved via wrapping.
	CompositionFailed Kind = "COMPOSITION_FAILED"
)

// Error is the single error type carrying a Kind. It wraps the underlying
// cause when one exists (engine rejections) so errors.Is/As keep working
// through it.
type Error struct {
	Kind Kind   // Kind is the failure class
	Msg  string // Msg is the human-readable description
	Err  error  // Err is the wrapped cause, nil for local failures
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidParamf builds an INVALID_PARAM error.
func InvalidParamf(format string, args ...any) *Error {
	return &Error{Kind: InvalidParam, Msg: fmt.Sprintf(format, args...)}
}

// ValidationFailedf builds a VALIDATION_FAILED error.
func ValidationFailedf(format string, args ...any) *Error {
	return &Error{Kind: ValidationFailed, Msg: fmt.Sprintf(format, args...)}
}

// Compositionf builds a COMPOSITION_FAILED error wrapping the engine's
// rejection. The cause is kept verbatim, never rewritten.
func Compositionf(cause error, format string, args ...any) *Error {
	return &Error{Kind: CompositionFailed, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf classifies an error. Returns the empty Kind for errors that did not
// originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
