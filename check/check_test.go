package check

import (
	"testing"

	"lattice/fault"
)

// --- ExactLen ---

func TestExactLen(t *testing.T) {
	if err := ExactLen("key", make([]byte, 32), 32); err != nil {
		t.Fatalf("exact length: unexpected error %v", err)
	}

	err := ExactLen("key", make([]byte, 31), 32)
	if err == nil {
		t.Fatal("short input: expected error")
	}
	if fault.KindOf(err) != fault.InvalidParam {
		t.Errorf("kind: got %q, want %q", fault.KindOf(err), fault.InvalidParam)
	}

	if err := ExactLen("key", nil, 32); err == nil {
		t.Fatal("nil input: expected error")
	}
}

// --- Positive ---

func TestPositive(t *testing.T) {
	if err := Positive("limit", 1); err != nil {
		t.Fatalf("positive: unexpected error %v", err)
	}

	err := Positive("limit", 0)
	if fault.KindOf(err) != fault.InvalidParam {
		t.Errorf("zero: got kind %q, want %q", fault.KindOf(err), fault.InvalidParam)
	}

	if err := Positive32("expiry", 0); fault.KindOf(err) != fault.InvalidParam {
		t.Errorf("zero uint32: got kind %q, want %q", fault.KindOf(err), fault.InvalidParam)
	}
}

// --- Ordered ---

func TestOrdered(t *testing.T) {
	if err := Ordered("phases", 100, 200); err != nil {
		t.Fatalf("ascending: unexpected error %v", err)
	}

	// Equality is rejected: no zero-width windows.
	if err := Ordered("phases", 100, 100); err == nil {
		t.Fatal("equal bounds: expected error")
	}

	if err := Ordered("phases", 200, 100); err == nil {
		t.Fatal("descending: expected error")
	}
}

// --- Range ---

func TestRange(t *testing.T) {
	if err := Range("threshold", 1, 1, 5); err != nil {
		t.Fatalf("lower bound: unexpected error %v", err)
	}

	if err := Range("threshold", 5, 1, 5); err != nil {
		t.Fatalf("upper bound: unexpected error %v", err)
	}

	if err := Range("threshold", 6, 1, 5); err == nil {
		t.Fatal("above range: expected error")
	}

	if err := Range("threshold", 0, 1, 5); err == nil {
		t.Fatal("below range: expected error")
	}
}
