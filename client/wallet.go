package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"lattice/fault"
	"lattice/tx"
)

// Wallet holds an ed25519 key in memory and signs transaction digests. It
// implements tx.Signer, so spend builders accept it directly. Keys live
// only for the wallet's lifetime; nothing is persisted.
type Wallet struct {
	priv ed25519.PrivateKey // priv is the ed25519 private key
	pub  ed25519.PublicKey  // pub is the ed25519 public key
}

// NewWallet creates a wallet with a fresh random key pair.
func NewWallet() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return &Wallet{priv: priv, pub: pub}, nil
}

// WalletFromSeed derives a deterministic wallet from a 32-byte seed.
func WalletFromSeed(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fault.InvalidParamf("wallet: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)

	return &Wallet{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// PublicKey implements tx.Signer.
func (w *Wallet) PublicKey() []byte {
	return w.pub
}

// Sign implements tx.Signer.
func (w *Wallet) Sign(digest [32]byte) ([]byte, error) {
	return ed25519.Sign(w.priv, digest[:]), nil
}

// KeyLock returns the pay-to-key lock for this wallet.
func (w *Wallet) KeyLock() tx.Lock {
	return tx.KeyLock(w.pub)
}

// Address returns the address of the wallet's key lock.
func (w *Wallet) Address() tx.Address {
	return w.KeyLock().Address()
}
