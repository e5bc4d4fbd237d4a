package engine

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"lattice/attest"
	"lattice/covenant"
	"lattice/tx"
)

// validateUnlock dispatches to the rule set for the spent output's lock
// type. Errors are plain; the caller stamps them with the input index and
// the validation kind.
func validateUnlock(t *tx.Transaction, inputIndex int, spent tx.Output) error {
	unlock := t.Inputs[inputIndex].Unlock

	switch spent.Lock.Type {
	case tx.LockKey:
		return validateKeySpend(t, inputIndex, spent, unlock)
	case tx.LockVault:
		return validateVault(t, inputIndex, spent, unlock)
	case tx.LockSchedule:
		return validateSchedule(t, inputIndex, spent, unlock)
	case tx.LockOracle:
		return validateOracle(t, spent, unlock)
	case tx.LockOracleQuorum:
		return validateQuorum(t, spent, unlock)
	case tx.LockTokenGate:
		return validateTokenGate(t, spent, unlock)
	default:
		return fmt.Errorf("unknown lock type 0x%02x", byte(spent.Lock.Type))
	}
}

// checkOwnerSig verifies an ed25519 signature over the input's digest and
// that the signing key is the committed owner.
func checkOwnerSig(t *tx.Transaction, inputIndex int, spent tx.Output, owner, pub, sig []byte) error {
	if !bytes.Equal(pub, owner) {
		return fmt.Errorf("key is not the committed owner")
	}

	digest := tx.SigDigest(t, inputIndex, spent)
	if !ed25519.Verify(pub, digest[:], sig) {
		return fmt.Errorf("signature does not verify")
	}

	return nil
}

// continuationAt fetches the output asserted as a continuation and checks it
// re-commits the identical lock.
func continuationAt(t *tx.Transaction, index uint32, lock tx.Lock) (tx.Output, error) {
	if int(index) >= len(t.Outputs) {
		return tx.Output{}, fmt.Errorf("continuation index %d out of range", index)
	}

	out := t.Outputs[index]
	if !out.Lock.Equal(lock) {
		return tx.Output{}, fmt.Errorf("continuation output %d does not re-commit the lock", index)
	}

	return out, nil
}

// validateKeySpend checks a plain pay-to-key spend.
func validateKeySpend(t *tx.Transaction, inputIndex int, spent tx.Output, unlock tx.Unlock) error {
	u, ok := unlock.(tx.KeySpend)
	if !ok {
		return fmt.Errorf("key lock needs a key spend, got %T", unlock)
	}

	return checkOwnerSig(t, inputIndex, spent, spent.Lock.Data, u.PublicKey, u.Signature)
}

// validateVault enforces the balance-limited policy: capped withdrawals to
// the committed whitelist with an exact-remainder continuation, or a full
// drain once the balance is at or below the limit.
func validateVault(t *tx.Transaction, inputIndex int, spent tx.Output, unlock tx.Unlock) error {
	params, err := covenant.ParseVaultLock(spent.Lock)
	if err != nil {
		return err
	}

	switch u := unlock.(type) {
	case tx.VaultSpend:
		if err := checkOwnerSig(t, inputIndex, spent, params.Owner, u.PublicKey, u.Signature); err != nil {
			return err
		}

		if u.Amount == 0 {
			return fmt.Errorf("vault: zero withdrawal")
		}
		if u.Amount > params.SpendLimit {
			return fmt.Errorf("vault: amount %d above limit %d", u.Amount, params.SpendLimit)
		}
		if u.Amount > spent.Value {
			return fmt.Errorf("vault: amount %d above balance %d", u.Amount, spent.Value)
		}

		if int(u.RecipientIndex) >= len(t.Outputs) {
			return fmt.Errorf("vault: recipient index %d out of range", u.RecipientIndex)
		}
		recipient := t.Outputs[u.RecipientIndex]
		if recipient.Lock.Address() != params.Whitelist {
			return fmt.Errorf("vault: recipient output %d is not the whitelisted address", u.RecipientIndex)
		}
		if recipient.Value != u.Amount {
			return fmt.Errorf("vault: recipient value %d, want %d", recipient.Value, u.Amount)
		}

		if u.ContinuationIndex == u.RecipientIndex {
			return fmt.Errorf("vault: continuation and recipient share output %d", u.RecipientIndex)
		}
		continuation, err := continuationAt(t, u.ContinuationIndex, spent.Lock)
		if err != nil {
			return fmt.Errorf("vault: %v", err)
		}
		if remainder := spent.Value - u.Amount; continuation.Value != remainder {
			return fmt.Errorf("vault: continuation value %d, want %d", continuation.Value, remainder)
		}

		return nil

	case tx.VaultDrain:
		if err := checkOwnerSig(t, inputIndex, spent, params.Owner, u.PublicKey, u.Signature); err != nil {
			return err
		}

		if spent.Value > params.SpendLimit {
			return fmt.Errorf("vault: balance %d above limit %d, drain unavailable", spent.Value, params.SpendLimit)
		}

		return nil

	default:
		return fmt.Errorf("vault lock needs a vault spend or drain, got %T", unlock)
	}
}

// validateSchedule enforces the phase timer against the transaction's
// finality threshold.
func validateSchedule(t *tx.Transaction, inputIndex int, spent tx.Output, unlock tx.Unlock) error {
	u, ok := unlock.(tx.ScheduleSpend)
	if !ok {
		return fmt.Errorf("schedule lock needs a schedule spend, got %T", unlock)
	}

	params, err := covenant.ParseScheduleLock(spent.Lock)
	if err != nil {
		return err
	}

	if err := checkOwnerSig(t, inputIndex, spent, params.Owner, u.PublicKey, u.Signature); err != nil {
		return err
	}

	phase := covenant.PhaseAt(params.Phase1, params.Phase2, t.Locktime)
	if phase == covenant.PhaseLocked {
		return fmt.Errorf("schedule: locked until %d, threshold %d", params.Phase1, t.Locktime)
	}
	if asserted := covenant.Phase(u.Phase); asserted != phase {
		return fmt.Errorf("schedule: asserted phase %s, threshold is in %s", asserted, phase)
	}

	if phase == covenant.PhaseRestricted {
		if u.Amount == 0 {
			return fmt.Errorf("schedule: zero withdrawal")
		}
		if u.Amount > spent.Value {
			return fmt.Errorf("schedule: amount %d above balance %d", u.Amount, spent.Value)
		}

		continuation, err := continuationAt(t, u.ContinuationIndex, spent.Lock)
		if err != nil {
			return fmt.Errorf("schedule: %v", err)
		}
		if remainder := spent.Value - u.Amount; continuation.Value != remainder {
			return fmt.Errorf("schedule: continuation value %d, want %d", continuation.Value, remainder)
		}
	}

	return nil
}

// checkMessageRules applies the shared attestation message rules: domain
// match, live nonce, freshness around the finality threshold, and the
// optional payload minimum.
func checkMessageRules(msg *attest.Message, t *tx.Transaction, domain attest.Domain, expiry, minValue uint32, requireMin bool) error {
	if msg.Domain != domain {
		return fmt.Errorf("domain %s, want %s", msg.Domain, domain)
	}
	if msg.Nonce == 0 {
		return fmt.Errorf("zero nonce")
	}

	issued := uint64(msg.Timestamp)
	if t.Locktime < issued {
		return fmt.Errorf("attestation from %d is in the threshold's future %d", issued, t.Locktime)
	}
	if deadline := issued + uint64(expiry); t.Locktime > deadline {
		return fmt.Errorf("attestation expired: threshold %d past deadline %d", t.Locktime, deadline)
	}

	if requireMin {
		value, err := attest.PayloadUint32(msg.Payload)
		if err != nil {
			return err
		}
		if value < minValue {
			return fmt.Errorf("payload value %d below minimum %d", value, minValue)
		}
	}

	return nil
}

// validateOracle enforces the single-attester gate.
func validateOracle(t *tx.Transaction, spent tx.Output, unlock tx.Unlock) error {
	u, ok := unlock.(tx.OracleReveal)
	if !ok {
		return fmt.Errorf("oracle lock needs an oracle reveal, got %T", unlock)
	}

	params, err := covenant.ParseOracleLock(spent.Lock)
	if err != nil {
		return err
	}

	msg, err := attest.DecodeMessage(u.Message)
	if err != nil {
		return fmt.Errorf("oracle: %v", err)
	}

	if err := checkMessageRules(msg, t, params.Domain, params.Expiry, params.MinValue, params.RequireMin); err != nil {
		return fmt.Errorf("oracle: %v", err)
	}

	att := &attest.Attestation{Message: msg, PublicKey: params.Attester, Signature: u.Signature}
	if !attest.VerifyAttestation(att) {
		return fmt.Errorf("oracle: attestation signature does not verify")
	}

	return nil
}

// validateQuorum enforces the committee gate: revealed committee matches the
// commitment, enough signers, aggregate verifies.
func validateQuorum(t *tx.Transaction, spent tx.Output, unlock tx.Unlock) error {
	u, ok := unlock.(tx.QuorumReveal)
	if !ok {
		return fmt.Errorf("quorum lock needs a quorum reveal, got %T", unlock)
	}

	params, err := covenant.ParseQuorumLock(spent.Lock)
	if err != nil {
		return err
	}

	if attest.CommitteeHash(u.Committee) != params.CommitteeHash {
		return fmt.Errorf("quorum: revealed committee does not match the commitment")
	}

	msg, err := attest.DecodeMessage(u.Message)
	if err != nil {
		return fmt.Errorf("quorum: %v", err)
	}

	if err := checkMessageRules(msg, t, params.Domain, params.Expiry, params.MinValue, params.RequireMin); err != nil {
		return fmt.Errorf("quorum: %v", err)
	}

	qa := &attest.QuorumAttestation{
		Message:       msg,
		AggregatedSig: u.AggregatedSig,
		SignerMask:    u.SignerMask,
	}
	if err := attest.VerifyQuorum(qa, u.Committee, int(params.Threshold)); err != nil {
		return fmt.Errorf("quorum: %v", err)
	}

	return nil
}

// validateTokenGate enforces token presence and preservation: the committed
// category arrives above the minimum and leaves above the minimum under the
// identical gate.
func validateTokenGate(t *tx.Transaction, spent tx.Output, unlock tx.Unlock) error {
	u, ok := unlock.(tx.TokenForward)
	if !ok {
		return fmt.Errorf("token gate needs a token forward, got %T", unlock)
	}

	params, err := covenant.ParseTokenGateLock(spent.Lock)
	if err != nil {
		return err
	}

	if spent.Token == nil {
		return fmt.Errorf("token gate: spent output carries no tokens")
	}
	if spent.Token.Category != params.Category {
		return fmt.Errorf("token gate: spent category %s, want %s",
			tx.DisplayCategory(spent.Token.Category), tx.DisplayCategory(params.Category))
	}
	if spent.Token.Amount < params.MinAmount {
		return fmt.Errorf("token gate: spent amount %d below minimum %d", spent.Token.Amount, params.MinAmount)
	}

	continuation, err := continuationAt(t, u.ContinuationIndex, spent.Lock)
	if err != nil {
		return fmt.Errorf("token gate: %v", err)
	}
	if continuation.Token == nil {
		return fmt.Errorf("token gate: continuation output %d carries no tokens", u.ContinuationIndex)
	}
	if continuation.Token.Category != params.Category {
		return fmt.Errorf("token gate: continuation category %s, want %s",
			tx.DisplayCategory(continuation.Token.Category), tx.DisplayCategory(params.Category))
	}
	if continuation.Token.Amount < params.MinAmount {
		return fmt.Errorf("token gate: continuation amount %d below minimum %d",
			continuation.Token.Amount, params.MinAmount)
	}

	return nil
}
