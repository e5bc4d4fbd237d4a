package covenant

import (
	"encoding/binary"

	"lattice/attest"
	"lattice/check"
	"lattice/fault"
	"lattice/tx"
)

// quorumDataSize is committeeHash(32) | threshold u16 LE(2) | domain(4) |
// expiry u32 LE(4) | minValue u32 LE(4) | flags(1).
const quorumDataSize = 32 + 2 + attest.DomainSize + 4 + 4 + 1

// QuorumOracle is the committee attestation gate: spending requires an
// aggregated BLS signature from at least threshold members of the committed
// committee over a fresh attestation message. The lock commits only the
// committee hash; the unlock reveals the ordered keys and the engine
// re-hashes them.
type QuorumOracle struct {
	committee  [][]byte
	threshold  uint16
	domain     attest.Domain
	expiry     uint32
	minValue   uint32
	requireMin bool
}

// NewQuorumOracle validates the configuration and commits it. The committee
// order is part of the commitment; reordering the keys is a different gate.
func NewQuorumOracle(committee [][]byte, threshold uint16, domain attest.Domain, expiry uint32) (*QuorumOracle, error) {
	if err := check.NonEmpty("committee", len(committee)); err != nil {
		return nil, err
	}
	for i, pk := range committee {
		if len(pk) != attest.BLSPublicKeySize {
			return nil, fault.InvalidParamf("committee key %d: got %d bytes, want %d", i, len(pk), attest.BLSPublicKeySize)
		}
	}
	if err := check.Range("threshold", uint64(threshold), 1, uint64(len(committee))); err != nil {
		return nil, err
	}
	if err := check.Positive32("expiry", expiry); err != nil {
		return nil, err
	}

	q := &QuorumOracle{
		threshold: threshold,
		domain:    domain,
		expiry:    expiry,
	}
	for _, pk := range committee {
		q.committee = append(q.committee, append([]byte(nil), pk...))
	}

	return q, nil
}

// NewQuorumOracleWithMinimum builds the payload-constrained variant.
func NewQuorumOracleWithMinimum(committee [][]byte, threshold uint16, domain attest.Domain, expiry, minValue uint32) (*QuorumOracle, error) {
	if err := check.Positive32("minimum payload value", minValue); err != nil {
		return nil, err
	}

	q, err := NewQuorumOracle(committee, threshold, domain, expiry)
	if err != nil {
		return nil, err
	}

	q.minValue = minValue
	q.requireMin = true

	return q, nil
}

// Lock returns the committed quorum policy.
func (q *QuorumOracle) Lock() tx.Lock {
	hash := attest.CommitteeHash(q.committee)

	data := make([]byte, 0, quorumDataSize)
	data = append(data, hash[:]...)
	data = appendU16LE(data, q.threshold)
	data = append(data, q.domain[:]...)
	data = appendU32LE(data, q.expiry)
	data = appendU32LE(data, q.minValue)

	var flags byte
	if q.requireMin {
		flags |= flagMinValue
	}
	data = append(data, flags)

	return tx.Lock{Type: tx.LockOracleQuorum, Data: data}
}

// Address derives the gate's funding address.
func (q *QuorumOracle) Address() tx.Address {
	return q.Lock().Address()
}

// Output builds a funding output carrying value under the quorum policy.
func (q *QuorumOracle) Output(value uint64) tx.Output {
	return tx.Output{Value: value, Lock: q.Lock()}
}

// Domain returns the committed attestation domain.
func (q *QuorumOracle) Domain() attest.Domain {
	return q.domain
}

// Committee returns the committed keys in commitment order.
func (q *QuorumOracle) Committee() [][]byte {
	out := make([][]byte, len(q.committee))
	for i, pk := range q.committee {
		out[i] = append([]byte(nil), pk...)
	}

	return out
}

// Balance sums the gate's unspent value.
func (q *QuorumOracle) Balance(l Ledger) (uint64, error) {
	return l.Balance(q.Address())
}

// SpendableOutputs lists the gate's unspent outputs.
func (q *QuorumOracle) SpendableOutputs(l Ledger) ([]tx.Spendable, error) {
	return l.SpendableOutputs(q.Address())
}

// Reveal builds the unlock carrying a quorum attestation together with the
// committee keys the lock only holds a hash of.
func (q *QuorumOracle) Reveal(qa *attest.QuorumAttestation) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func([32]byte) (tx.Unlock, error) {
		if qa == nil || qa.Message == nil {
			return nil, fault.InvalidParamf("quorum attestation is empty")
		}

		return tx.QuorumReveal{
			Message:       qa.Message.Encode(),
			AggregatedSig: append([]byte(nil), qa.AggregatedSig...),
			SignerMask:    append([]byte(nil), qa.SignerMask...),
			Committee:     q.Committee(),
		}, nil
	})
}

// QuorumParams is a quorum lock decoded back into its committed parameters.
type QuorumParams struct {
	CommitteeHash [32]byte      // CommitteeHash commits to the ordered keys
	Threshold     uint16        // Threshold is the minimum signer count
	Domain        attest.Domain // Domain the attestation must carry
	Expiry        uint32        // Expiry is the freshness window in seconds
	MinValue      uint32        // MinValue is the payload minimum when enforced
	RequireMin    bool          // RequireMin marks the payload-constrained variant
}

// ParseQuorumLock decodes a quorum lock's committed parameters.
func ParseQuorumLock(l tx.Lock) (QuorumParams, error) {
	var p QuorumParams

	if l.Type != tx.LockOracleQuorum {
		return p, errLockType("quorum oracle", l.Type)
	}
	if err := check.ExactLen("quorum lock data", l.Data, quorumDataSize); err != nil {
		return p, err
	}

	copy(p.CommitteeHash[:], l.Data[:32])
	p.Threshold = binary.LittleEndian.Uint16(l.Data[32:34])
	copy(p.Domain[:], l.Data[34:38])
	p.Expiry = binary.LittleEndian.Uint32(l.Data[38:42])
	p.MinValue = binary.LittleEndian.Uint32(l.Data[42:46])
	p.RequireMin = l.Data[46]&flagMinValue != 0

	return p, nil
}
