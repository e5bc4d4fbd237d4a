// Package covenant builds the pre-funded spending policies the ledger
// enforces: balance-limited vaults, phase timers, attestation gates, and
// token gates. A constructor validates its parameters once and commits them
// into a lock; the engine later enforces exactly what was committed, so a
// primitive that constructs cleanly cannot be weakened at spend time.
//
// Unlock builders are pure: they produce descriptor bytes without touching
// the ledger and without pre-checking spend legality. A doomed descriptor is
// fine to build; the engine rejects the transaction carrying it.
package covenant

import (
	"encoding/binary"

	"lattice/fault"
	"lattice/tx"
)

// Ledger answers the queries primitives need: what is held at an address.
// The in-process engine and the HTTP client both implement it.
type Ledger interface {
	// Balance sums the unspent value held at an address.
	Balance(addr tx.Address) (uint64, error)

	// SpendableOutputs lists the unspent outputs held at an address.
	SpendableOutputs(addr tx.Address) ([]tx.Spendable, error)
}

// flagMinValue marks oracle locks that enforce a minimum payload value.
const flagMinValue byte = 0x01

// errLockType reports a lock handed to the wrong parser.
func errLockType(want string, got tx.LockType) error {
	return fault.InvalidParamf("lock type: got %s, want %s", got, want)
}

func appendU16LE(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32LE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64LE(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
