package attest

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// QuorumAttestation is one message signed by a threshold of a BLS committee:
// the aggregated signature plus a bitmap of who contributed. The committee
// itself is not embedded; verifiers already hold it (or a commitment to it)
// and pass it in.
type QuorumAttestation struct {
	Message       *Message // Message is the attested content, identical bytes for every signer
	AggregatedSig []byte   // AggregatedSig is the aggregated BLS signature (96 bytes)
	SignerMask    []byte   // SignerMask marks contributing committee indices
}

// CommitteeHash commits to an ordered BLS committee: blake3 over the
// concatenated compressed public keys. Order matters; reordering the
// committee changes the commitment.
func CommitteeHash(committee [][]byte) [32]byte {
	h := blake3.New()
	for _, pk := range committee {
		h.Write(pk)
	}

	var sum [32]byte
	h.Sum(sum[:0])

	return sum
}

// VerifyQuorum checks a quorum attestation against an ordered committee:
// every masked index is in range, at least threshold members signed, and the
// aggregated signature verifies over the encoded message against exactly the
// masked subset.
func VerifyQuorum(qa *QuorumAttestation, committee [][]byte, threshold int) error {
	if qa == nil || qa.Message == nil {
		return fmt.Errorf("quorum attestation is empty")
	}

	indices := ParseSignerBitmap(qa.SignerMask)
	if len(indices) < threshold {
		return fmt.Errorf("insufficient signers: got %d, need %d", len(indices), threshold)
	}

	signers := make([][]byte, 0, len(indices))

	for _, idx := range indices {
		if idx >= len(committee) {
			return fmt.Errorf("signer index %d out of range for committee of %d", idx, len(committee))
		}

		signers = append(signers, committee[idx])
	}

	if qa.Message.Nonce == 0 {
		return fmt.Errorf("nonce is zero")
	}

	if !VerifyAggregated(qa.AggregatedSig, qa.Message.Encode(), signers) {
		return fmt.Errorf("aggregated signature is invalid")
	}

	return nil
}
