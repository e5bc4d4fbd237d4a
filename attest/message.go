// Package attest implements the attestation message codec and the attesters
// that sign it: a single ed25519 attester and BLS committees whose partial
// signatures aggregate into one quorum attestation.
//
// An attestation message is an interoperable byte layout, not an in-memory
// convenience. Both sides of the protocol (attesters signing it, the engine
// verifying it inside an unlock) must agree on every byte.
package attest

import (
	"encoding/binary"

	"lattice/fault"
)

const (
	// DomainSize is the fixed length of a domain separator.
	DomainSize = 4

	// MinMessageSize is the smallest valid encoded message: domain (4) +
	// timestamp (4) + nonce (4) with an empty payload.
	MinMessageSize = 12
)

// Domain is a 4-byte separator distinguishing attestation streams (for
// example "PRCE" or "WTHR"). Messages for one domain never verify against a
// gate committed to another.
type Domain [DomainSize]byte

// DomainFromString builds a Domain from a string of exactly 4 bytes.
func DomainFromString(s string) (Domain, error) {
	return DomainFromBytes([]byte(s))
}

// DomainFromBytes builds a Domain from a slice of exactly 4 bytes.
func DomainFromBytes(b []byte) (Domain, error) {
	var d Domain
	if len(b) != DomainSize {
		return d, fault.InvalidParamf("domain: got %d bytes, want %d", len(b), DomainSize)
	}
	copy(d[:], b)
	return d, nil
}

// String renders the domain as text.
func (d Domain) String() string {
	return string(d[:])
}

// Message is a decoded attestation message.
//
// Format: [4B domain] [u32 timestamp LE] [u32 nonce LE] [payload].
// Timestamps are epoch seconds. The nonce must be nonzero in a valid
// attestation; zero is rejected wherever one is verified. The payload is
// opaque to the codec; gates that constrain it read its first 4 bytes as a
// little-endian u32.
type Message struct {
	Domain    Domain // Domain is the attestation stream separator
	Timestamp uint32 // Timestamp is the attester's clock, epoch seconds
	Nonce     uint32 // Nonce makes equal-content messages distinct
	Payload   []byte // Payload is the attested content, may be empty
}

// Encode serializes the message into the fixed layout. The result is always
// MinMessageSize + len(Payload) bytes.
func (m *Message) Encode() []byte {
	buf := make([]byte, MinMessageSize+len(m.Payload))
	copy(buf[0:4], m.Domain[:])
	binary.LittleEndian.PutUint32(buf[4:8], m.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], m.Nonce)
	copy(buf[12:], m.Payload)

	return buf
}

// DecodeMessage parses an encoded message. Inputs shorter than
// MinMessageSize fail with INVALID_PARAM. The payload is copied, so the
// result does not alias the input.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < MinMessageSize {
		return nil, fault.InvalidParamf("message: got %d bytes, want at least %d", len(b), MinMessageSize)
	}

	m := &Message{
		Timestamp: binary.LittleEndian.Uint32(b[4:8]),
		Nonce:     binary.LittleEndian.Uint32(b[8:12]),
	}
	copy(m.Domain[:], b[0:4])

	if payload := b[MinMessageSize:]; len(payload) > 0 {
		m.Payload = make([]byte, len(payload))
		copy(m.Payload, payload)
	}

	return m, nil
}

// FixedLE encodes v into exactly width little-endian bytes. Values that do
// not fit are truncated; callers must range-check before encoding.
func FixedLE(v uint64, width int) []byte {
	buf := make([]byte, width)

	for i := 0; i < width && i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}

	return buf
}

// FromFixedLE decodes little-endian bytes of any width back into a uint64.
// Widths beyond 8 bytes contribute nothing (the inverse of FixedLE
// truncation).
func FromFixedLE(b []byte) uint64 {
	var v uint64

	n := len(b)
	if n > 8 {
		n = 8
	}

	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << (8 * i)
	}

	return v
}

// Uint32Payload encodes v as the 4-byte little-endian payload head used by
// value-constrained gates.
func Uint32Payload(v uint32) []byte {
	return FixedLE(uint64(v), 4)
}

// PayloadUint32 reads the first 4 payload bytes as a little-endian u32.
func PayloadUint32(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, fault.InvalidParamf("payload: got %d bytes, want at least 4 for a numeric head", len(payload))
	}

	return binary.LittleEndian.Uint32(payload[:4]), nil
}
