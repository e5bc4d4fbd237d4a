package tx

import (
	"fmt"
	"math"

	"lattice/fault"
)

// UnlockBuilder produces the unlock descriptor for one input once that
// input's signing digest is known. Covenant packages return these from their
// descriptor builders; modes that carry no signature ignore the digest.
type UnlockBuilder interface {
	Build(digest [32]byte) (Unlock, error)
}

// UnlockBuilderFunc adapts a function to UnlockBuilder.
type UnlockBuilderFunc func(digest [32]byte) (Unlock, error)

// Build implements UnlockBuilder.
func (f UnlockBuilderFunc) Build(digest [32]byte) (Unlock, error) {
	return f(digest)
}

// Totals is the composer's debug introspection: value sums and the implied
// fee of the session as currently staged. Sums saturate at the maximum
// instead of wrapping.
type Totals struct {
	InputValue  uint64 // InputValue is the sum of staged input values
	OutputValue uint64 // OutputValue is the sum of staged output values
	Fee         uint64 // Fee is InputValue - OutputValue, zero when negative
	InputCount  int    // InputCount is the number of staged inputs
	OutputCount int    // OutputCount is the number of staged outputs
}

// Composer accumulates independently locked inputs and destination outputs
// into one transaction. Inputs and outputs keep their call order: unlock
// descriptors reference outputs by position, so order is part of the
// caller's contract.
//
// The composer never pre-validates spend legality. Building a transaction
// that the engine will reject is allowed; the rejection surfaces from Submit
// as a COMPOSITION_FAILED fault wrapping the engine's reason.
type Composer struct {
	submitter Submitter
	inputs    []stagedInput
	outputs   []Output
	locktime  uint64
}

// stagedInput pairs a spendable output with its unlock builder.
type stagedInput struct {
	spendable Spendable
	builder   UnlockBuilder
}

// NewComposer starts an empty session that will submit through s.
func NewComposer(s Submitter) *Composer {
	return &Composer{submitter: s}
}

// AddInput stages a spendable output and the builder that will unlock it.
func (c *Composer) AddInput(sp Spendable, b UnlockBuilder) *Composer {
	c.inputs = append(c.inputs, stagedInput{spendable: sp, builder: b})
	return c
}

// AddOutput stages a destination output. A nil token means a plain output.
func (c *Composer) AddOutput(lock Lock, value uint64, token *TokenData) *Composer {
	c.outputs = append(c.outputs, Output{Value: value, Lock: lock, Token: token.Clone()})
	return c
}

// SetLocktime sets the transaction's finality threshold.
func (c *Composer) SetLocktime(v uint64) *Composer {
	c.locktime = v
	return c
}

// Validate checks the shape invariants that never need I/O: at least one
// input and at least one output. Anything deeper is the engine's job.
func (c *Composer) Validate() error {
	if len(c.inputs) == 0 {
		return fault.ValidationFailedf("transaction has no inputs")
	}

	if len(c.outputs) == 0 {
		return fault.ValidationFailedf("transaction has no outputs")
	}

	return nil
}

// Assemble builds the transaction: inputs and outputs exactly as staged,
// then one unlock per input built against that input's signing digest.
// Assemble performs no ledger I/O; with deterministic signers, assembling
// twice yields identical transactions.
func (c *Composer) Assemble() (*Transaction, error) {
	t := &Transaction{
		Inputs:   make([]Input, len(c.inputs)),
		Outputs:  make([]Output, len(c.outputs)),
		Locktime: c.locktime,
	}

	for i, in := range c.inputs {
		t.Inputs[i].Outpoint = in.spendable.Outpoint
	}
	copy(t.Outputs, c.outputs)

	// Digests cover the unlock-free body, so filling unlocks one by one
	// does not disturb the digests of later inputs.
	for i, in := range c.inputs {
		digest := SigDigest(t, i, in.spendable.Output)

		unlock, err := in.builder.Build(digest)
		if err != nil {
			return nil, fmt.Errorf("input %d: build unlock:\n%w", i, err)
		}

		t.Inputs[i].Unlock = unlock
	}

	return t, nil
}

// Submit validates, assembles, and submits exactly once. An engine
// rejection comes back as a COMPOSITION_FAILED fault wrapping the engine's
// reason verbatim; the session is left untouched, and nothing is retried.
func (c *Composer) Submit() (TxID, error) {
	if err := c.Validate(); err != nil {
		return TxID{}, err
	}

	t, err := c.Assemble()
	if err != nil {
		return TxID{}, err
	}

	id, err := c.submitter.Submit(t)
	if err != nil {
		return TxID{}, fault.Compositionf(err, "transaction rejected")
	}

	return id, nil
}

// Summary reports the staged totals. Purely local; safe to call at any
// point in the session.
func (c *Composer) Summary() Totals {
	totals := Totals{
		InputCount:  len(c.inputs),
		OutputCount: len(c.outputs),
	}

	for _, in := range c.inputs {
		totals.InputValue = saturatingAdd(totals.InputValue, in.spendable.Output.Value)
	}

	for _, out := range c.outputs {
		totals.OutputValue = saturatingAdd(totals.OutputValue, out.Value)
	}

	if totals.InputValue > totals.OutputValue {
		totals.Fee = totals.InputValue - totals.OutputValue
	}

	return totals
}

// saturatingAdd adds with saturation at MaxUint64 instead of wrapping.
func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}

	return a + b
}
