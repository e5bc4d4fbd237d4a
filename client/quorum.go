package client

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"

	"lattice/attest"
	"lattice/fault"
	"lattice/internal/attnet"
)

// AttesterInfo locates one committee member's signing endpoint.
type AttesterInfo struct {
	Addr  string // Addr is the attester's QUIC endpoint
	Index int    // Index is the attester's committee position
}

// QuorumClient collects BLS partial signatures from a committee and folds
// them into a quorum attestation. The caller fixes the full message,
// including timestamp and nonce, so every member signs identical bytes.
type QuorumClient struct {
	identity  ed25519.PrivateKey // identity authenticates the QUIC transport
	committee [][]byte           // committee is the ordered BLS public keys
	threshold int                // threshold is the minimum signer count
}

// NewQuorumClient creates a collector for one committee.
func NewQuorumClient(identity ed25519.PrivateKey, committee [][]byte, threshold int) (*QuorumClient, error) {
	if identity == nil {
		return nil, fault.InvalidParamf("quorum client: identity key is required")
	}

	if len(committee) == 0 {
		return nil, fault.InvalidParamf("quorum client: committee is empty")
	}

	if threshold < 1 || threshold > len(committee) {
		return nil, fault.InvalidParamf("quorum client: threshold %d out of range for committee of %d", threshold, len(committee))
	}

	return &QuorumClient{identity: identity, committee: committee, threshold: threshold}, nil
}

// Collect fans out the signing request in parallel and returns once enough
// verified partials arrive. Refusals, transport failures, and partials that
// do not verify are skipped; the collection fails when the remaining
// attesters cannot reach the threshold. The result is ready for a quorum
// reveal.
func (q *QuorumClient) Collect(ctx context.Context, attesters []AttesterInfo, msg *attest.Message) (*attest.QuorumAttestation, error) {
	if msg == nil || msg.Nonce == 0 {
		return nil, fault.InvalidParamf("quorum client: message must carry a nonzero nonce")
	}

	request := attnet.EncodeSignRequest(msg)
	partialCh := make(chan *attnet.Partial, len(attesters))

	var refused atomic.Int32
	var wg sync.WaitGroup

	for _, info := range attesters {
		wg.Add(1)

		go func(info AttesterInfo) {
			defer wg.Done()
			partialCh <- q.requestPartial(ctx, info, request, msg, &refused)
		}(info)
	}

	// Close channel when all goroutines complete
	go func() {
		wg.Wait()
		close(partialCh)
	}()

	// Collect until threshold; late responders drain into the buffer.
	seen := make(map[uint32]bool)
	var partials []*attnet.Partial

	for p := range partialCh {
		if p == nil || seen[p.Index] {
			continue
		}

		seen[p.Index] = true
		partials = append(partials, p)

		if len(partials) >= q.threshold {
			break
		}
	}

	if len(partials) < q.threshold {
		return nil, fmt.Errorf("collect quorum: got %d partials, need %d (%d refused)",
			len(partials), q.threshold, refused.Load())
	}

	return q.aggregate(msg, partials)
}

// requestPartial asks one attester to sign and verifies the result before
// accepting it. Returns nil for anything unusable.
func (q *QuorumClient) requestPartial(
	ctx context.Context,
	info AttesterInfo,
	request []byte,
	msg *attest.Message,
	refused *atomic.Int32,
) *attnet.Partial {
	conn, err := attnet.Dial(ctx, info.Addr, q.identity)
	if err != nil {
		return nil
	}
	defer conn.Close()

	resp, err := conn.Request(ctx, request)
	if err != nil {
		return nil
	}

	if p, err := attnet.DecodePartial(resp); err == nil {
		// The claimed index must be the one we dialed, and the partial
		// must verify against that committee slot.
		if int(p.Index) != info.Index || int(p.Index) >= len(q.committee) {
			return nil
		}

		if !attest.VerifyBLS(p.Signature, msg.Encode(), q.committee[p.Index]) {
			return nil
		}

		return p
	}

	if _, err := attnet.DecodeRefusal(resp); err == nil {
		refused.Add(1)
	}

	return nil
}

// aggregate folds verified partials into one attestation.
func (q *QuorumClient) aggregate(msg *attest.Message, partials []*attnet.Partial) (*attest.QuorumAttestation, error) {
	signatures := make([][]byte, len(partials))
	indices := make([]int, len(partials))

	for i, p := range partials {
		signatures[i] = p.Signature
		indices[i] = int(p.Index)
	}

	aggregated, err := attest.AggregateSignatures(signatures)
	if err != nil {
		return nil, fmt.Errorf("aggregate partials:\n%w", err)
	}

	return &attest.QuorumAttestation{
		Message:       msg,
		AggregatedSig: aggregated,
		SignerMask:    attest.BuildSignerBitmap(indices, len(q.committee)),
	}, nil
}
