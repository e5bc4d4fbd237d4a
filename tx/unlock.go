package tx

// UnlockMode discriminates unlock descriptors on the wire. Each lock type
// accepts a specific subset of modes; the engine rejects mismatches.
type UnlockMode uint8

const (
	// ModeKeySpend satisfies LockKey with a signature.
	ModeKeySpend UnlockMode = 0x01

	// ModeVaultSpend is the vault's capped, whitelisted, continuing spend.
	ModeVaultSpend UnlockMode = 0x02

	// ModeVaultDrain empties a vault output at or below the spend limit.
	ModeVaultDrain UnlockMode = 0x03

	// ModeScheduleSpend satisfies LockSchedule in its asserted phase.
	ModeScheduleSpend UnlockMode = 0x04

	// ModeOracleReveal presents a signed attestation to LockOracle.
	ModeOracleReveal UnlockMode = 0x05

	// ModeQuorumReveal presents an aggregated committee attestation to
	// LockOracleQuorum, revealing the committee behind its hash commitment.
	ModeQuorumReveal UnlockMode = 0x06

	// ModeTokenForward satisfies LockTokenGate by preserving its token.
	ModeTokenForward UnlockMode = 0x07
)

// Unlock is the witness data for one input, a tagged variant carrying only
// what its spend mode needs. Index fields are the caller's positional
// contract: the composer never cross-checks them against output order, the
// engine enforces them at validation time.
type Unlock interface {
	Mode() UnlockMode
}

// KeySpend spends a LockKey output.
type KeySpend struct {
	PublicKey []byte // PublicKey is the signer's ed25519 key (32 bytes)
	Signature []byte // Signature is over the input's sighash digest (64 bytes)
}

// Mode implements Unlock.
func (KeySpend) Mode() UnlockMode { return ModeKeySpend }

// VaultSpend spends up to the vault's limit to the whitelisted destination,
// re-funding the vault with the remainder.
type VaultSpend struct {
	PublicKey         []byte // PublicKey is the vault owner's key
	Signature         []byte // Signature is over the input's sighash digest
	Amount            uint64 // Amount leaves the vault, at most the spend limit
	RecipientIndex    uint32 // RecipientIndex is the whitelisted output's position
	ContinuationIndex uint32 // ContinuationIndex is the re-funding output's position
}

// Mode implements Unlock.
func (VaultSpend) Mode() UnlockMode { return ModeVaultSpend }

// VaultDrain empties a vault output whose value is at or below the spend
// limit in one step, with no continuation.
type VaultDrain struct {
	PublicKey []byte // PublicKey is the vault owner's key
	Signature []byte // Signature is over the input's sighash digest
}

// Mode implements Unlock.
func (VaultDrain) Mode() UnlockMode { return ModeVaultDrain }

// ScheduleSpend spends a LockSchedule output in its asserted phase.
// Phase 1 (restricted) requires the continuation discipline; phase 2
// (unrestricted) needs the signature only and ignores the other fields.
type ScheduleSpend struct {
	PublicKey         []byte // PublicKey is the schedule owner's key
	Signature         []byte // Signature is over the input's sighash digest
	Phase             uint8  // Phase asserted: 1 restricted, 2 unrestricted
	Amount            uint64 // Amount leaves the schedule in a restricted spend
	ContinuationIndex uint32 // ContinuationIndex is the re-funding output's position
}

// Mode implements Unlock.
func (ScheduleSpend) Mode() UnlockMode { return ModeScheduleSpend }

// OracleReveal presents an attestation: the encoded message bytes and the
// attester's signature over their blake3 digest. The attester's public key
// is not carried; the lock already commits to it.
type OracleReveal struct {
	Message   []byte // Message is the encoded attestation message
	Signature []byte // Signature is the committed attester's ed25519 signature
}

// Mode implements Unlock.
func (OracleReveal) Mode() UnlockMode { return ModeOracleReveal }

// QuorumReveal presents a committee attestation. The committee public keys
// are revealed here and checked against the lock's hash commitment before
// the aggregated signature is verified against the masked subset.
type QuorumReveal struct {
	Message       []byte   // Message is the encoded attestation message
	AggregatedSig []byte   // AggregatedSig is the aggregated BLS signature (96 bytes)
	SignerMask    []byte   // SignerMask marks which committee indices signed
	Committee     [][]byte // Committee is the ordered BLS public keys (48 bytes each)
}

// Mode implements Unlock.
func (QuorumReveal) Mode() UnlockMode { return ModeQuorumReveal }

// TokenForward spends a LockTokenGate output, naming the output that
// carries the token onward.
type TokenForward struct {
	ContinuationIndex uint32 // ContinuationIndex is the preserving output's position
}

// Mode implements Unlock.
func (TokenForward) Mode() UnlockMode { return ModeTokenForward }
