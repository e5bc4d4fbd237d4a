package tx

import (
	"bytes"
	"errors"
	"testing"

	"lattice/fault"
)

// recordingSubmitter counts Submit calls so tests can prove validation and
// assembly stay local.
type recordingSubmitter struct {
	calls int
	last  *Transaction
	err   error
}

func (r *recordingSubmitter) Submit(t *Transaction) (TxID, error) {
	r.calls++
	r.last = t

	if r.err != nil {
		return TxID{}, r.err
	}

	return t.ID(), nil
}

// stagedSpendable builds a spendable key-locked output for composer tests.
func stagedSpendable(t *testing.T, seed byte, value uint64) Spendable {
	t.Helper()

	sp := Spendable{
		Output: Output{Value: value, Lock: KeyLock(bytes.Repeat([]byte{seed}, 32))},
	}
	for i := range sp.Outpoint.TxID {
		sp.Outpoint.TxID[i] = seed
	}

	return sp
}

// keyBuilder returns an UnlockBuilder producing a fixed-key KeySpend and
// recording the digest it was handed.
func keyBuilder(seed byte, got *[32]byte) UnlockBuilder {
	return UnlockBuilderFunc(func(digest [32]byte) (Unlock, error) {
		if got != nil {
			*got = digest
		}

		return KeySpend{
			PublicKey: bytes.Repeat([]byte{seed}, 32),
			Signature: bytes.Repeat([]byte{seed}, 64),
		}, nil
	})
}

// --- Validate ---

// TestComposerValidate covers the shape checks and proves no submission
// happens during them.
func TestComposerValidate(t *testing.T) {
	sub := &recordingSubmitter{}
	out := Output{Value: 10, Lock: KeyLock(bytes.Repeat([]byte{0x01}, 32))}

	cases := []struct {
		name     string
		compose  func() *Composer
		wantKind fault.Kind
	}{
		{
			"no inputs",
			func() *Composer {
				return NewComposer(sub).AddOutput(out.Lock, out.Value, nil)
			},
			fault.ValidationFailed,
		},
		{
			"no outputs",
			func() *Composer {
				return NewComposer(sub).AddInput(stagedSpendable(t, 0x02, 10), keyBuilder(0x02, nil))
			},
			fault.ValidationFailed,
		},
		{
			"complete",
			func() *Composer {
				return NewComposer(sub).
					AddInput(stagedSpendable(t, 0x02, 10), keyBuilder(0x02, nil)).
					AddOutput(out.Lock, out.Value, nil)
			},
			"",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.compose().Validate()

			if tc.wantKind == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
			} else if fault.KindOf(err) != tc.wantKind {
				t.Fatalf("got kind %q, want %q", fault.KindOf(err), tc.wantKind)
			}
		})
	}

	if sub.calls != 0 {
		t.Errorf("validate submitted %d times, want 0", sub.calls)
	}
}

// --- Assemble ---

// TestComposerAssemble verifies staging order is preserved, builders receive
// per-input digests, and nothing is submitted.
func TestComposerAssemble(t *testing.T) {
	sub := &recordingSubmitter{}
	var digest0, digest1 [32]byte

	in0 := stagedSpendable(t, 0x10, 7_000)
	in1 := stagedSpendable(t, 0x20, 3_000)
	lock := KeyLock(bytes.Repeat([]byte{0x30}, 32))

	built, err := NewComposer(sub).
		AddInput(in0, keyBuilder(0x10, &digest0)).
		AddInput(in1, keyBuilder(0x20, &digest1)).
		AddOutput(lock, 9_500, nil).
		SetLocktime(42).
		Assemble()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if built.Locktime != 42 {
		t.Errorf("locktime: got %d, want 42", built.Locktime)
	}
	if len(built.Inputs) != 2 || built.Inputs[0].Outpoint != in0.Outpoint || built.Inputs[1].Outpoint != in1.Outpoint {
		t.Error("inputs not staged in order")
	}
	if len(built.Outputs) != 1 || !built.Outputs[0].Lock.Equal(lock) {
		t.Error("outputs not staged in order")
	}

	for i, in := range built.Inputs {
		if in.Unlock == nil {
			t.Errorf("input %d: no unlock attached", i)
		}
	}

	if digest0 == digest1 {
		t.Error("each input should sign its own digest")
	}
	if want := SigDigest(built, 0, in0.Output); digest0 != want {
		t.Error("builder 0 handed the wrong digest")
	}

	if sub.calls != 0 {
		t.Errorf("assemble submitted %d times, want 0", sub.calls)
	}
}

// TestComposerAssembleBuilderError verifies a failing builder aborts assembly
// with its cause intact.
func TestComposerAssembleBuilderError(t *testing.T) {
	cause := errors.New("signer unavailable")
	failing := UnlockBuilderFunc(func([32]byte) (Unlock, error) {
		return nil, cause
	})

	_, err := NewComposer(&recordingSubmitter{}).
		AddInput(stagedSpendable(t, 0x01, 10), failing).
		AddOutput(KeyLock(bytes.Repeat([]byte{0x02}, 32)), 10, nil).
		Assemble()

	if !errors.Is(err, cause) {
		t.Fatalf("got %v, want the builder's cause", err)
	}
}

// TestComposerAddOutputClonesToken verifies mutating the caller's token after
// staging does not leak into the built transaction.
func TestComposerAddOutputClonesToken(t *testing.T) {
	token := &TokenData{Amount: 50}
	token.Category[0] = 0xAA

	c := NewComposer(&recordingSubmitter{}).
		AddInput(stagedSpendable(t, 0x01, 10), keyBuilder(0x01, nil)).
		AddOutput(KeyLock(bytes.Repeat([]byte{0x02}, 32)), 10, token)

	token.Amount = 999

	built, err := c.Assemble()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if built.Outputs[0].Token.Amount != 50 {
		t.Errorf("token amount: got %d, want 50", built.Outputs[0].Token.Amount)
	}
}

// --- Submit ---

// TestComposerSubmit verifies the accept path makes exactly one submission
// and returns the engine's id.
func TestComposerSubmit(t *testing.T) {
	sub := &recordingSubmitter{}

	id, err := NewComposer(sub).
		AddInput(stagedSpendable(t, 0x11, 10_000), keyBuilder(0x11, nil)).
		AddOutput(KeyLock(bytes.Repeat([]byte{0x22}, 32)), 9_000, nil).
		Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if sub.calls != 1 {
		t.Fatalf("submitted %d times, want exactly 1", sub.calls)
	}
	if id != sub.last.ID() {
		t.Error("returned id does not match the submitted transaction")
	}
}

// TestComposerSubmitRejection verifies an engine rejection surfaces as a
// composition failure with the reason preserved, and is not retried.
func TestComposerSubmitRejection(t *testing.T) {
	cause := errors.New("input 0: vault: amount above limit")
	sub := &recordingSubmitter{err: cause}

	_, err := NewComposer(sub).
		AddInput(stagedSpendable(t, 0x11, 10), keyBuilder(0x11, nil)).
		AddOutput(KeyLock(bytes.Repeat([]byte{0x22}, 32)), 10, nil).
		Submit()

	if fault.KindOf(err) != fault.CompositionFailed {
		t.Fatalf("got kind %q, want %q", fault.KindOf(err), fault.CompositionFailed)
	}
	if !errors.Is(err, cause) {
		t.Error("rejection reason was not preserved")
	}
	if sub.calls != 1 {
		t.Errorf("submitted %d times, want exactly 1", sub.calls)
	}
}

// TestComposerSubmitInvalidShape verifies a shape failure surfaces before any
// submission happens.
func TestComposerSubmitInvalidShape(t *testing.T) {
	sub := &recordingSubmitter{}

	_, err := NewComposer(sub).Submit()
	if fault.KindOf(err) != fault.ValidationFailed {
		t.Fatalf("got kind %q, want %q", fault.KindOf(err), fault.ValidationFailed)
	}
	if sub.calls != 0 {
		t.Errorf("submitted %d times, want 0", sub.calls)
	}
}

// --- Summary ---

// TestComposerSummary verifies the debug totals, including fee clamping when
// outputs exceed inputs.
func TestComposerSummary(t *testing.T) {
	lock := KeyLock(bytes.Repeat([]byte{0x01}, 32))

	c := NewComposer(&recordingSubmitter{}).
		AddInput(stagedSpendable(t, 0x02, 7_000), keyBuilder(0x02, nil)).
		AddInput(stagedSpendable(t, 0x03, 3_000), keyBuilder(0x03, nil)).
		AddOutput(lock, 9_500, nil)

	totals := c.Summary()
	if totals.InputValue != 10_000 || totals.OutputValue != 9_500 || totals.Fee != 500 {
		t.Errorf("totals: %+v", totals)
	}
	if totals.InputCount != 2 || totals.OutputCount != 1 {
		t.Errorf("counts: %+v", totals)
	}

	over := NewComposer(&recordingSubmitter{}).
		AddInput(stagedSpendable(t, 0x02, 100), keyBuilder(0x02, nil)).
		AddOutput(lock, 200, nil).
		Summary()
	if over.Fee != 0 {
		t.Errorf("negative fee should clamp to 0, got %d", over.Fee)
	}
}
