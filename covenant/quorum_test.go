package covenant

import (
	"bytes"
	"testing"

	"lattice/attest"
	"lattice/fault"
	"lattice/tx"
)

// testCommittee derives a deterministic BLS committee.
func testCommittee(t *testing.T, size int) ([]*attest.BLSKeyPair, [][]byte) {
	t.Helper()

	keys := make([]*attest.BLSKeyPair, size)
	pubs := make([][]byte, size)

	for i := range keys {
		seed := bytes.Repeat([]byte{byte(i + 1)}, 32)

		kp, err := attest.GenerateBLSKeyFromSeed(seed)
		if err != nil {
			t.Fatalf("key %d: %v", i, err)
		}

		keys[i] = kp
		pubs[i] = kp.PublicKeyBytes()
	}

	return keys, pubs
}

// --- NewQuorumOracle ---

// TestNewQuorumOracleRejects walks the constructor's parameter checks.
func TestNewQuorumOracleRejects(t *testing.T) {
	_, pubs := testCommittee(t, 3)
	domain := testDomain(t)

	cases := []struct {
		name      string
		committee [][]byte
		threshold uint16
		expiry    uint32
	}{
		{"empty committee", nil, 1, 600},
		{"short key", [][]byte{pubs[0][:47]}, 1, 600},
		{"zero threshold", pubs, 0, 600},
		{"threshold above size", pubs, 4, 600},
		{"zero expiry", pubs, 2, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewQuorumOracle(tc.committee, tc.threshold, domain, tc.expiry)
			if fault.KindOf(err) != fault.InvalidParam {
				t.Fatalf("got kind %q, want %q", fault.KindOf(err), fault.InvalidParam)
			}
		})
	}

	if _, err := NewQuorumOracle(pubs, 3, domain, 600); err != nil {
		t.Fatalf("threshold == size should construct: %v", err)
	}
}

// TestQuorumLockRoundTrip verifies the lock commits the committee hash, not
// the keys, and that reordering the committee moves the address.
func TestQuorumLockRoundTrip(t *testing.T) {
	_, pubs := testCommittee(t, 3)
	domain := testDomain(t)

	q, err := NewQuorumOracleWithMinimum(pubs, 2, domain, 600, 50)
	if err != nil {
		t.Fatalf("new quorum oracle: %v", err)
	}

	params, err := ParseQuorumLock(q.Lock())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if params.CommitteeHash != attest.CommitteeHash(pubs) {
		t.Error("committee hash mismatch")
	}
	if params.Threshold != 2 || params.Domain != domain || params.Expiry != 600 {
		t.Errorf("params: %+v", params)
	}
	if !params.RequireMin || params.MinValue != 50 {
		t.Errorf("minimum not committed: %+v", params)
	}

	reordered := [][]byte{pubs[1], pubs[0], pubs[2]}
	q2, err := NewQuorumOracle(reordered, 2, domain, 600)
	if err != nil {
		t.Fatalf("reordered committee: %v", err)
	}
	if q2.Address() == q.Address() {
		t.Error("committee order should be part of the commitment")
	}
}

// TestQuorumReveal verifies the unlock reveals the committee alongside the
// aggregated signature.
func TestQuorumReveal(t *testing.T) {
	keys, pubs := testCommittee(t, 3)
	domain := testDomain(t)

	q, err := NewQuorumOracle(pubs, 2, domain, 600)
	if err != nil {
		t.Fatalf("new quorum oracle: %v", err)
	}

	msg := &attest.Message{Domain: domain, Timestamp: 1_700_000_000, Nonce: 9}
	raw := msg.Encode()

	agg, err := attest.AggregateSignatures([][]byte{keys[0].Sign(raw), keys[2].Sign(raw)})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	qa := &attest.QuorumAttestation{
		Message:       msg,
		AggregatedSig: agg,
		SignerMask:    attest.BuildSignerBitmap([]int{0, 2}, len(pubs)),
	}

	u := buildUnlock(t, q.Reveal(qa), [32]byte{})

	reveal, ok := u.(tx.QuorumReveal)
	if !ok {
		t.Fatalf("got %T, want QuorumReveal", u)
	}

	if !bytes.Equal(reveal.Message, raw) {
		t.Error("message bytes altered")
	}
	if len(reveal.Committee) != 3 {
		t.Fatalf("committee: got %d keys, want 3", len(reveal.Committee))
	}
	for i := range reveal.Committee {
		if !bytes.Equal(reveal.Committee[i], pubs[i]) {
			t.Fatalf("committee key %d altered", i)
		}
	}

	if err := attest.VerifyQuorum(qa, pubs, 2); err != nil {
		t.Errorf("carried attestation should verify: %v", err)
	}
}

// TestQuorumCommitteeCopies verifies accessor and reveal hand out copies.
func TestQuorumCommitteeCopies(t *testing.T) {
	_, pubs := testCommittee(t, 2)

	q, err := NewQuorumOracle(pubs, 1, testDomain(t), 600)
	if err != nil {
		t.Fatalf("new quorum oracle: %v", err)
	}

	leaked := q.Committee()
	leaked[0][0] ^= 0xFF

	if !bytes.Equal(q.Committee()[0], pubs[0]) {
		t.Error("mutating a returned committee should not corrupt the gate")
	}
}
