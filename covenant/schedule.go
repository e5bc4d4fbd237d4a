package covenant

import (
	"crypto/ed25519"
	"encoding/binary"

	"lattice/check"
	"lattice/fault"
	"lattice/tx"
)

// scheduleDataSize is owner(32) | phase1 u64 LE(8) | phase2 u64 LE(8).
const scheduleDataSize = ed25519.PublicKeySize + 8 + 8

// Phase is the spending regime a schedule is in at a given finality
// threshold.
type Phase uint8

const (
	// PhaseLocked admits no spend at all.
	PhaseLocked Phase = iota

	// PhaseRestricted admits partial withdrawals with a continuation.
	PhaseRestricted

	// PhaseUnrestricted admits any owner-signed spend.
	PhaseUnrestricted
)

// String names the phase for errors and logs.
func (p Phase) String() string {
	switch p {
	case PhaseLocked:
		return "locked"
	case PhaseRestricted:
		return "restricted"
	case PhaseUnrestricted:
		return "unrestricted"
	default:
		return "unknown"
	}
}

// PhaseAt maps a finality threshold to the schedule's phase. It is total and
// monotone non-decreasing in t: locked before phase1, restricted from phase1
// up to but excluding phase2, unrestricted from phase2 on.
func PhaseAt(phase1, phase2, t uint64) Phase {
	switch {
	case t < phase1:
		return PhaseLocked
	case t < phase2:
		return PhaseRestricted
	default:
		return PhaseUnrestricted
	}
}

// Schedule is the phase-timer policy: funds are locked until phase1,
// restricted to continuation-preserving withdrawals until phase2, and free
// afterwards.
type Schedule struct {
	owner  []byte
	phase1 uint64
	phase2 uint64
}

// NewSchedule validates the configuration and commits it. The phases must be
// strictly ordered; a zero-width restricted window is a configuration
// mistake, not a degenerate schedule.
func NewSchedule(owner []byte, phase1, phase2 uint64) (*Schedule, error) {
	if err := check.ExactLen("owner key", owner, ed25519.PublicKeySize); err != nil {
		return nil, err
	}
	if err := check.Positive("phase1", phase1); err != nil {
		return nil, err
	}
	if err := check.Ordered("schedule phases", phase1, phase2); err != nil {
		return nil, err
	}

	return &Schedule{
		owner:  append([]byte(nil), owner...),
		phase1: phase1,
		phase2: phase2,
	}, nil
}

// Lock returns the committed schedule policy.
func (s *Schedule) Lock() tx.Lock {
	data := make([]byte, 0, scheduleDataSize)
	data = append(data, s.owner...)
	data = appendU64LE(data, s.phase1)
	data = appendU64LE(data, s.phase2)

	return tx.Lock{Type: tx.LockSchedule, Data: data}
}

// Address derives the schedule's funding address.
func (s *Schedule) Address() tx.Address {
	return s.Lock().Address()
}

// Output builds a funding output carrying value under the schedule policy.
func (s *Schedule) Output(value uint64) tx.Output {
	return tx.Output{Value: value, Lock: s.Lock()}
}

// PhaseAt maps a finality threshold to this schedule's phase.
func (s *Schedule) PhaseAt(t uint64) Phase {
	return PhaseAt(s.phase1, s.phase2, t)
}

// Balance sums the schedule's unspent value.
func (s *Schedule) Balance(l Ledger) (uint64, error) {
	return l.Balance(s.Address())
}

// SpendableOutputs lists the schedule's unspent outputs.
func (s *Schedule) SpendableOutputs(l Ledger) ([]tx.Spendable, error) {
	return l.SpendableOutputs(s.Address())
}

// RestrictedSpend builds the unlock for a withdrawal inside the restricted
// window: amount leaves, the remainder stays under the identical schedule at
// continuationIndex. The engine checks the asserted phase against the
// transaction's finality threshold.
func (s *Schedule) RestrictedSpend(signer tx.Signer, amount uint64, continuationIndex uint32) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func(digest [32]byte) (tx.Unlock, error) {
		sig, err := signer.Sign(digest)
		if err != nil {
			return nil, err
		}

		return tx.ScheduleSpend{
			PublicKey:         signer.PublicKey(),
			Signature:         sig,
			Phase:             uint8(PhaseRestricted),
			Amount:            amount,
			ContinuationIndex: continuationIndex,
		}, nil
	})
}

// UnrestrictedSpend builds the unlock for a spend after phase2, owner
// signature only.
func (s *Schedule) UnrestrictedSpend(signer tx.Signer) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func(digest [32]byte) (tx.Unlock, error) {
		sig, err := signer.Sign(digest)
		if err != nil {
			return nil, err
		}

		return tx.ScheduleSpend{
			PublicKey: signer.PublicKey(),
			Signature: sig,
			Phase:     uint8(PhaseUnrestricted),
		}, nil
	})
}

// ScheduleParams is a schedule lock decoded back into its committed
// parameters.
type ScheduleParams struct {
	Owner  []byte // Owner is the ed25519 public key allowed to spend
	Phase1 uint64 // Phase1 opens the restricted window
	Phase2 uint64 // Phase2 opens unrestricted spending
}

// ParseScheduleLock decodes a schedule lock's committed parameters.
func ParseScheduleLock(l tx.Lock) (ScheduleParams, error) {
	var p ScheduleParams

	if l.Type != tx.LockSchedule {
		return p, errLockType("schedule", l.Type)
	}
	if err := check.ExactLen("schedule lock data", l.Data, scheduleDataSize); err != nil {
		return p, err
	}

	p.Owner = append([]byte(nil), l.Data[:32]...)
	p.Phase1 = binary.LittleEndian.Uint64(l.Data[32:40])
	p.Phase2 = binary.LittleEndian.Uint64(l.Data[40:48])

	if p.Phase1 >= p.Phase2 {
		return p, fault.InvalidParamf("schedule lock: phase1 %d not before phase2 %d", p.Phase1, p.Phase2)
	}

	return p, nil
}
