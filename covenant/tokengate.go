package covenant

import (
	"encoding/binary"

	"lattice/check"
	"lattice/tx"
)

// tokenGateDataSize is category(32) | minAmount u64 LE(8).
const tokenGateDataSize = 32 + 8

// TokenGate is the token-presence policy: the output is spendable only by a
// transaction that carries the committed token category forward, at or above
// the committed minimum amount, under the identical gate.
type TokenGate struct {
	category  [32]byte
	minAmount uint64
}

// NewTokenGate validates the configuration and commits it. Category bytes
// are in canonical ledger order; convert display hex with
// tx.CategoryFromDisplay first.
func NewTokenGate(category [32]byte, minAmount uint64) (*TokenGate, error) {
	if err := check.Positive("minimum token amount", minAmount); err != nil {
		return nil, err
	}

	return &TokenGate{category: category, minAmount: minAmount}, nil
}

// NewTokenGateFromDisplay builds a gate from a display-hex category string.
func NewTokenGateFromDisplay(display string, minAmount uint64) (*TokenGate, error) {
	category, err := tx.CategoryFromDisplay(display)
	if err != nil {
		return nil, err
	}

	return NewTokenGate(category, minAmount)
}

// Lock returns the committed token-gate policy.
func (g *TokenGate) Lock() tx.Lock {
	data := make([]byte, 0, tokenGateDataSize)
	data = append(data, g.category[:]...)
	data = appendU64LE(data, g.minAmount)

	return tx.Lock{Type: tx.LockTokenGate, Data: data}
}

// Address derives the gate's funding address in its plain form.
func (g *TokenGate) Address() tx.Address {
	return g.Lock().Address()
}

// TokenAddress renders the same address in its token-aware string form.
func (g *TokenGate) TokenAddress() string {
	return g.Address().TokenString()
}

// Category returns the committed category in canonical order.
func (g *TokenGate) Category() [32]byte {
	return g.category
}

// Output builds a funding output holding tokenAmount of the committed
// category plus value under the gate policy.
func (g *TokenGate) Output(value, tokenAmount uint64) tx.Output {
	return tx.Output{
		Value: value,
		Lock:  g.Lock(),
		Token: &tx.TokenData{Category: g.category, Amount: tokenAmount},
	}
}

// Balance sums the gate's unspent value.
func (g *TokenGate) Balance(l Ledger) (uint64, error) {
	return l.Balance(g.Address())
}

// SpendableOutputs lists the gate's unspent outputs.
func (g *TokenGate) SpendableOutputs(l Ledger) ([]tx.Spendable, error) {
	return l.SpendableOutputs(g.Address())
}

// Forward builds the unlock for carrying the tokens onward. The transaction
// must stage the continuation output; the engine checks category and amount
// against the committed policy.
func (g *TokenGate) Forward(continuationIndex uint32) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func([32]byte) (tx.Unlock, error) {
		return tx.TokenForward{ContinuationIndex: continuationIndex}, nil
	})
}

// TokenGateParams is a token-gate lock decoded back into its committed
// parameters.
type TokenGateParams struct {
	Category  [32]byte // Category is the committed token category
	MinAmount uint64   // MinAmount is the smallest amount that may pass
}

// ParseTokenGateLock decodes a token-gate lock's committed parameters.
func ParseTokenGateLock(l tx.Lock) (TokenGateParams, error) {
	var p TokenGateParams

	if l.Type != tx.LockTokenGate {
		return p, errLockType("token gate", l.Type)
	}
	if err := check.ExactLen("token gate lock data", l.Data, tokenGateDataSize); err != nil {
		return p, err
	}

	copy(p.Category[:], l.Data[:32])
	p.MinAmount = binary.LittleEndian.Uint64(l.Data[32:40])

	return p, nil
}
