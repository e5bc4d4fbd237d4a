package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// --- KindOf ---

// TestKindOfDirect verifies classification of errors built by this package.
func TestKindOfDirect(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"invalid param", InvalidParamf("ownerPub: got 31 bytes, want 32"), InvalidParam},
		{"validation failed", ValidationFailedf("transaction has no inputs"), ValidationFailed},
		{"composition failed", Compositionf(errors.New("vault: amount exceeds limit"), "submit"), CompositionFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf: got %q, want %q", got, tc.want)
			}
		})
	}
}

// TestKindOfWrapped verifies classification survives fmt.Errorf wrapping.
func TestKindOfWrapped(t *testing.T) {
	inner := InvalidParamf("domain: got 3 bytes, want 4")
	outer := fmt.Errorf("construct gate:\n%w", inner)

	if got := KindOf(outer); got != InvalidParam {
		t.Errorf("KindOf through wrap: got %q, want %q", got, InvalidParam)
	}

	if !IsKind(outer, InvalidParam) {
		t.Error("IsKind through wrap: got false, want true")
	}
}

// TestKindOfForeign verifies foreign errors classify as empty.
func TestKindOfForeign(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf foreign: got %q, want empty", got)
	}

	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf nil: got %q, want empty", got)
	}
}

// --- Compositionf ---

// TestCompositionPreservesCause verifies the engine reason stays reachable
// and readable through the wrapper.
func TestCompositionPreservesCause(t *testing.T) {
	cause := errors.New("schedule: phase 1 asserted but threshold 99 is before phase1 100")
	err := Compositionf(cause, "submit")

	if !errors.Is(err, cause) {
		t.Error("errors.Is: cause not reachable through wrapper")
	}

	msg := err.Error()
	if want := cause.Error(); !strings.Contains(msg, want) {
		t.Errorf("message %q does not contain cause %q", msg, want)
	}
}
