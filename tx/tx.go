// Package tx defines the ledger transaction model, its canonical byte
// encoding, and the Composer that assembles independently locked inputs into
// one all-or-nothing transaction.
//
// Outputs carry their full spending policy (a Lock: type byte plus committed
// parameter bytes) so the engine can enforce the policy when the output is
// later spent. An Address is the blake3 hash of the canonical lock encoding;
// equal parameters always derive the same address.
package tx

import (
	"bytes"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// TxID identifies a transaction: blake3 over the canonical encoding with all
// unlock data stripped, so the id is stable under signing.
type TxID [32]byte

// String renders the id as lowercase hex.
func (id TxID) String() string {
	return hex.EncodeToString(id[:])
}

// Outpoint references one output of a prior transaction.
type Outpoint struct {
	TxID  TxID   // TxID is the creating transaction
	Index uint32 // Index is the output position within it
}

// LockType discriminates the spending policies an output can carry.
type LockType uint8

const (
	// LockKey pays a plain ed25519 key: data is the 32-byte public key.
	LockKey LockType = 0x01

	// LockVault is the balance-limited vault:
	// owner(32) | spendLimit u64 LE(8) | whitelist address(32).
	LockVault LockType = 0x02

	// LockSchedule is the phase timer:
	// owner(32) | phase1 u64 LE(8) | phase2 u64 LE(8).
	LockSchedule LockType = 0x03

	// LockOracle is the attestation gate:
	// attester(32) | domain(4) | expiry u32 LE(4) | minValue u32 LE(4) | flags(1).
	LockOracle LockType = 0x04

	// LockOracleQuorum is the committee attestation gate:
	// committeeHash(32) | threshold u16 LE(2) | domain(4) | expiry u32 LE(4) |
	// minValue u32 LE(4) | flags(1).
	LockOracleQuorum LockType = 0x05

	// LockTokenGate requires a committed token category:
	// category(32) | minAmount u64 LE(8).
	LockTokenGate LockType = 0x06
)

// String names the lock type for error messages and logs.
func (t LockType) String() string {
	switch t {
	case LockKey:
		return "key"
	case LockVault:
		return "vault"
	case LockSchedule:
		return "schedule"
	case LockOracle:
		return "oracle"
	case LockOracleQuorum:
		return "quorum oracle"
	case LockTokenGate:
		return "token gate"
	default:
		return "unknown"
	}
}

// Lock is an output's spending policy: a type and the committed parameter
// bytes the engine interprets when the output is spent.
type Lock struct {
	Type LockType // Type selects the validation rules
	Data []byte   // Data is the canonical parameter layout for Type
}

// Encode serializes the lock as [1B type][data].
func (l Lock) Encode() []byte {
	buf := make([]byte, 1+len(l.Data))
	buf[0] = byte(l.Type)
	copy(buf[1:], l.Data)

	return buf
}

// Equal reports byte-for-byte equality of two locks.
func (l Lock) Equal(other Lock) bool {
	return l.Type == other.Type && bytes.Equal(l.Data, other.Data)
}

// Address derives the lock's ledger address:
// blake3("lattice-addr-v1" || encoded lock).
func (l Lock) Address() Address {
	h := blake3.New()
	h.Write([]byte("lattice-addr-v1"))
	h.Write(l.Encode())

	var a Address
	h.Sum(a[:0])

	return a
}

// KeyLock builds the plain pay-to-key lock for an ed25519 public key.
func KeyLock(publicKey []byte) Lock {
	data := make([]byte, len(publicKey))
	copy(data, publicKey)

	return Lock{Type: LockKey, Data: data}
}

// TokenData is a fungible token amount attached to an output. Category bytes
// are in canonical ledger order; see CategoryFromDisplay for the display-hex
// conversion.
type TokenData struct {
	Category [32]byte // Category identifies the token
	Amount   uint64   // Amount is the fungible quantity carried
}

// Clone returns an independent copy, nil for nil.
func (td *TokenData) Clone() *TokenData {
	if td == nil {
		return nil
	}

	out := *td
	return &out
}

// Output is a spendable ledger entry: a value, the lock that must be
// satisfied to spend it, and optional token data.
type Output struct {
	Value uint64     // Value is the base amount
	Lock  Lock       // Lock is the spending policy
	Token *TokenData // Token is optional fungible token data
}

// Spendable pairs an unspent output with its location. Ledger queries return
// these; the composer consumes them.
type Spendable struct {
	Outpoint Outpoint // Outpoint locates the output
	Output   Output   // Output is the entry itself
}

// Input is an outpoint plus the unlock descriptor satisfying its lock.
type Input struct {
	Outpoint Outpoint // Outpoint is the spent output's location
	Unlock   Unlock   // Unlock is the witness data for its lock
}

// Transaction is the unit of atomic state change. Locktime is the finality
// threshold: the engine accepts the transaction only once its clock reaches
// it, and phase and freshness rules are evaluated against it.
type Transaction struct {
	Inputs   []Input  // Inputs are consumed in full
	Outputs  []Output // Outputs are created in order
	Locktime uint64   // Locktime is the finality threshold
}

// ID computes the transaction id over the unlock-free canonical encoding.
func (t *Transaction) ID() TxID {
	h := blake3.New()
	h.Write([]byte("lattice-txid-v1"))
	h.Write(encodeTransactionBody(t, false))

	var id TxID
	h.Sum(id[:0])

	return id
}

// Signer produces signatures over 32-byte digests. Wallets implement it with
// a local key; remote signing services can implement it with I/O.
type Signer interface {
	// PublicKey returns the 32-byte ed25519 public key.
	PublicKey() []byte

	// Sign signs a digest.
	Sign(digest [32]byte) ([]byte, error)
}

// Submitter accepts an assembled transaction for validation and atomic
// application, returning its id or the rejection reason. The in-process
// engine and the HTTP client both implement it.
type Submitter interface {
	Submit(t *Transaction) (TxID, error)
}
