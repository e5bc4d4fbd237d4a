package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"lattice/fault"
)

// Attestation is a message plus the attester's signature over its encoded
// bytes. The signature covers blake3(messageBytes), the same digest scheme
// transactions use.
type Attestation struct {
	Message   *Message // Message is the attested content
	PublicKey []byte   // PublicKey is the attester's ed25519 public key (32 bytes)
	Signature []byte   // Signature is the ed25519 signature over the message digest (64 bytes)
}

// Attester signs attestation messages with an ed25519 key. The clock is
// injectable so tests can pin timestamps.
type Attester struct {
	priv ed25519.PrivateKey
	now  func() uint32
}

// NewAttester wraps an ed25519 private key.
func NewAttester(priv ed25519.PrivateKey) (*Attester, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fault.InvalidParamf("attester key: got %d bytes, want %d", len(priv), ed25519.PrivateKeySize)
	}

	return &Attester{
		priv: priv,
		now:  func() uint32 { return uint32(time.Now().Unix()) },
	}, nil
}

// WithClock replaces the attester's clock. Returns the attester for chaining.
func (a *Attester) WithClock(now func() uint32) *Attester {
	a.now = now
	return a
}

// PublicKey returns the attester's ed25519 public key.
func (a *Attester) PublicKey() []byte {
	return a.priv.Public().(ed25519.PublicKey)
}

// Attest stamps the current time, draws a fresh nonzero nonce, and signs.
func (a *Attester) Attest(domain Domain, payload []byte) (*Attestation, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	return a.AttestAt(domain, a.now(), nonce, payload)
}

// AttestAt signs a fully specified message. Committees use this form so
// every member signs identical bytes. A zero nonce is refused: the nonzero
// convention is what makes a stripped-out nonce detectable downstream.
func (a *Attester) AttestAt(domain Domain, timestamp, nonce uint32, payload []byte) (*Attestation, error) {
	if nonce == 0 {
		return nil, fault.InvalidParamf("nonce: got 0, want nonzero")
	}

	msg := &Message{
		Domain:    domain,
		Timestamp: timestamp,
		Nonce:     nonce,
		Payload:   payload,
	}

	digest := blake3.Sum256(msg.Encode())
	sig := ed25519.Sign(a.priv, digest[:])

	return &Attestation{
		Message:   msg,
		PublicKey: a.PublicKey(),
		Signature: sig,
	}, nil
}

// VerifyAttestation checks the ed25519 signature over the encoded message.
// Freshness, domain, and nonce rules belong to the gate that consumes the
// attestation, not to this check.
func VerifyAttestation(att *Attestation) bool {
	if att == nil || att.Message == nil {
		return false
	}

	if len(att.PublicKey) != ed25519.PublicKeySize || len(att.Signature) != ed25519.SignatureSize {
		return false
	}

	digest := blake3.Sum256(att.Message.Encode())

	return ed25519.Verify(att.PublicKey, digest[:], att.Signature)
}

// randomNonce draws a uniform nonzero u32.
func randomNonce() (uint32, error) {
	var buf [4]byte

	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("draw nonce:\n%w", err)
		}

		if n := binary.LittleEndian.Uint32(buf[:]); n != 0 {
			return n, nil
		}
	}
}
