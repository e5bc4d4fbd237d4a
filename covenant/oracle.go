package covenant

import (
	"crypto/ed25519"
	"encoding/binary"

	"lattice/attest"
	"lattice/check"
	"lattice/fault"
	"lattice/tx"
)

// oracleDataSize is attester(32) | domain(4) | expiry u32 LE(4) |
// minValue u32 LE(4) | flags(1).
const oracleDataSize = ed25519.PublicKeySize + attest.DomainSize + 4 + 4 + 1

// Oracle is the attestation-gate policy: the output is spendable only with a
// fresh signed attestation from the committed attester in the committed
// domain. The payload-constrained variant additionally requires the first
// four payload bytes, read little-endian, to reach a committed minimum.
type Oracle struct {
	attester   []byte
	domain     attest.Domain
	expiry     uint32
	minValue   uint32
	requireMin bool
}

// NewOracle validates the configuration and commits it. Expiry is the
// attestation's freshness window in seconds past its timestamp.
func NewOracle(attester []byte, domain attest.Domain, expiry uint32) (*Oracle, error) {
	if err := check.ExactLen("attester key", attester, ed25519.PublicKeySize); err != nil {
		return nil, err
	}
	if err := check.Positive32("expiry", expiry); err != nil {
		return nil, err
	}

	return &Oracle{
		attester: append([]byte(nil), attester...),
		domain:   domain,
		expiry:   expiry,
	}, nil
}

// NewOracleWithMinimum builds the payload-constrained variant. Choosing the
// variant with a zero minimum is a configuration mistake; use NewOracle for
// an unconstrained gate.
func NewOracleWithMinimum(attester []byte, domain attest.Domain, expiry, minValue uint32) (*Oracle, error) {
	if err := check.Positive32("minimum payload value", minValue); err != nil {
		return nil, err
	}

	o, err := NewOracle(attester, domain, expiry)
	if err != nil {
		return nil, err
	}

	o.minValue = minValue
	o.requireMin = true

	return o, nil
}

// Lock returns the committed oracle policy.
func (o *Oracle) Lock() tx.Lock {
	data := make([]byte, 0, oracleDataSize)
	data = append(data, o.attester...)
	data = append(data, o.domain[:]...)
	data = appendU32LE(data, o.expiry)
	data = appendU32LE(data, o.minValue)

	var flags byte
	if o.requireMin {
		flags |= flagMinValue
	}
	data = append(data, flags)

	return tx.Lock{Type: tx.LockOracle, Data: data}
}

// Address derives the oracle gate's funding address.
func (o *Oracle) Address() tx.Address {
	return o.Lock().Address()
}

// Output builds a funding output carrying value under the oracle policy.
func (o *Oracle) Output(value uint64) tx.Output {
	return tx.Output{Value: value, Lock: o.Lock()}
}

// Domain returns the committed attestation domain.
func (o *Oracle) Domain() attest.Domain {
	return o.domain
}

// Balance sums the gate's unspent value.
func (o *Oracle) Balance(l Ledger) (uint64, error) {
	return l.Balance(o.Address())
}

// SpendableOutputs lists the gate's unspent outputs.
func (o *Oracle) SpendableOutputs(l Ledger) ([]tx.Spendable, error) {
	return l.SpendableOutputs(o.Address())
}

// Reveal builds the unlock carrying an attestation. The attestation is
// witness data: it rides in the transaction, is checked against the
// committed policy and the transaction's finality threshold, and is never
// stored by the engine.
func (o *Oracle) Reveal(att *attest.Attestation) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func([32]byte) (tx.Unlock, error) {
		if att == nil || att.Message == nil {
			return nil, fault.InvalidParamf("attestation is empty")
		}

		return tx.OracleReveal{
			Message:   att.Message.Encode(),
			Signature: append([]byte(nil), att.Signature...),
		}, nil
	})
}

// OracleParams is an oracle lock decoded back into its committed parameters.
type OracleParams struct {
	Attester   []byte        // Attester is the committed ed25519 public key
	Domain     attest.Domain // Domain the attestation must carry
	Expiry     uint32        // Expiry is the freshness window in seconds
	MinValue   uint32        // MinValue is the payload minimum when enforced
	RequireMin bool          // RequireMin marks the payload-constrained variant
}

// ParseOracleLock decodes an oracle lock's committed parameters.
func ParseOracleLock(l tx.Lock) (OracleParams, error) {
	var p OracleParams

	if l.Type != tx.LockOracle {
		return p, errLockType("oracle", l.Type)
	}
	if err := check.ExactLen("oracle lock data", l.Data, oracleDataSize); err != nil {
		return p, err
	}

	p.Attester = append([]byte(nil), l.Data[:32]...)
	copy(p.Domain[:], l.Data[32:36])
	p.Expiry = binary.LittleEndian.Uint32(l.Data[36:40])
	p.MinValue = binary.LittleEndian.Uint32(l.Data[40:44])
	p.RequireMin = l.Data[44]&flagMinValue != 0

	return p, nil
}
