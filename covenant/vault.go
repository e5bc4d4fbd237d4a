package covenant

import (
	"crypto/ed25519"
	"encoding/binary"

	"lattice/check"
	"lattice/tx"
)

// vaultDataSize is owner(32) | spendLimit u64 LE(8) | whitelist(32).
const vaultDataSize = ed25519.PublicKeySize + 8 + 32

// Vault is the balance-limited spending policy. The owner moves at most the
// committed limit per transaction, only to the committed whitelist address,
// with the remainder re-locked under the identical policy. Once the balance
// is at or below the limit the owner may drain it in one step with no
// destination constraint.
type Vault struct {
	owner      []byte
	spendLimit uint64
	whitelist  tx.Address
}

// NewVault validates the configuration and commits it. The whitelist is the
// address of the sole allowed destination for capped spends.
func NewVault(owner []byte, spendLimit uint64, whitelist []byte) (*Vault, error) {
	if err := check.ExactLen("owner key", owner, ed25519.PublicKeySize); err != nil {
		return nil, err
	}
	if err := check.Positive("spend limit", spendLimit); err != nil {
		return nil, err
	}
	if err := check.ExactLen("whitelist hash", whitelist, 32); err != nil {
		return nil, err
	}

	v := &Vault{
		owner:      append([]byte(nil), owner...),
		spendLimit: spendLimit,
	}
	copy(v.whitelist[:], whitelist)

	return v, nil
}

// Lock returns the committed vault policy.
func (v *Vault) Lock() tx.Lock {
	data := make([]byte, 0, vaultDataSize)
	data = append(data, v.owner...)
	data = appendU64LE(data, v.spendLimit)
	data = append(data, v.whitelist[:]...)

	return tx.Lock{Type: tx.LockVault, Data: data}
}

// Address derives the vault's funding address.
func (v *Vault) Address() tx.Address {
	return v.Lock().Address()
}

// Output builds a funding output carrying value under the vault policy.
func (v *Vault) Output(value uint64) tx.Output {
	return tx.Output{Value: value, Lock: v.Lock()}
}

// SpendLimit returns the committed per-transaction limit.
func (v *Vault) SpendLimit() uint64 {
	return v.spendLimit
}

// Whitelist returns the committed destination address.
func (v *Vault) Whitelist() tx.Address {
	return v.whitelist
}

// Balance sums the vault's unspent value.
func (v *Vault) Balance(l Ledger) (uint64, error) {
	return l.Balance(v.Address())
}

// SpendableOutputs lists the vault's unspent outputs.
func (v *Vault) SpendableOutputs(l Ledger) ([]tx.Spendable, error) {
	return l.SpendableOutputs(v.Address())
}

// CappedSpend builds the unlock for a limited withdrawal: amount to the
// whitelisted output at recipientIndex, the remainder re-vaulted at
// continuationIndex. The transaction must stage both outputs; the engine
// checks them against the committed policy.
func (v *Vault) CappedSpend(signer tx.Signer, amount uint64, recipientIndex, continuationIndex uint32) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func(digest [32]byte) (tx.Unlock, error) {
		sig, err := signer.Sign(digest)
		if err != nil {
			return nil, err
		}

		return tx.VaultSpend{
			PublicKey:         signer.PublicKey(),
			Signature:         sig,
			Amount:            amount,
			RecipientIndex:    recipientIndex,
			ContinuationIndex: continuationIndex,
		}, nil
	})
}

// Drain builds the unlock for a full exit, legal only while the spent
// output's value is at or below the committed limit.
func (v *Vault) Drain(signer tx.Signer) tx.UnlockBuilder {
	return tx.UnlockBuilderFunc(func(digest [32]byte) (tx.Unlock, error) {
		sig, err := signer.Sign(digest)
		if err != nil {
			return nil, err
		}

		return tx.VaultDrain{PublicKey: signer.PublicKey(), Signature: sig}, nil
	})
}

// VaultParams is a vault lock decoded back into its committed parameters.
type VaultParams struct {
	Owner      []byte     // Owner is the ed25519 public key allowed to spend
	SpendLimit uint64     // SpendLimit caps a single capped withdrawal
	Whitelist  tx.Address // Whitelist is the sole capped-spend destination
}

// ParseVaultLock decodes a vault lock's committed parameters.
func ParseVaultLock(l tx.Lock) (VaultParams, error) {
	var p VaultParams

	if l.Type != tx.LockVault {
		return p, errLockType("vault", l.Type)
	}
	if err := check.ExactLen("vault lock data", l.Data, vaultDataSize); err != nil {
		return p, err
	}

	p.Owner = append([]byte(nil), l.Data[:32]...)
	p.SpendLimit = binary.LittleEndian.Uint64(l.Data[32:40])
	copy(p.Whitelist[:], l.Data[40:72])

	return p, nil
}
