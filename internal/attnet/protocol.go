package attnet

import (
	"encoding/binary"
	"fmt"

	"lattice/attest"
)

// Message types for the attestation signing protocol.
const (
	msgTypeSign    = 0x01 // Request to sign a proposed message
	msgTypePartial = 0x02 // Partial BLS signature from one committee member
	msgTypeRefusal = 0x03 // Signing refused
)

// Refusal reasons.
const (
	// RefusalDomain means the requested domain is not in the attester's
	// allowlist.
	RefusalDomain = 0x01

	// RefusalSkew means the proposed timestamp is too far from the
	// attester's clock.
	RefusalSkew = 0x02

	// RefusalMessage means the proposed message failed structural checks.
	RefusalMessage = 0x03
)

// EncodeSignRequest encodes a signing request. The client fixes every field
// of the message, including timestamp and nonce, so all committee members
// sign identical bytes.
// Format: [1B type] [message bytes]
func EncodeSignRequest(m *attest.Message) []byte {
	body := m.Encode()
	buf := make([]byte, 1+len(body))
	buf[0] = msgTypeSign
	copy(buf[1:], body)

	return buf
}

// DecodeSignRequest decodes a signing request into the proposed message.
func DecodeSignRequest(data []byte) (*attest.Message, error) {
	if len(data) < 1+attest.MinMessageSize {
		return nil, fmt.Errorf("sign request too short: %d < %d", len(data), 1+attest.MinMessageSize)
	}

	if data[0] != msgTypeSign {
		return nil, fmt.Errorf("invalid message type: 0x%02x", data[0])
	}

	return attest.DecodeMessage(data[1:])
}

// Partial is one committee member's contribution to a quorum attestation.
type Partial struct {
	Index     uint32 // Index is the attester's committee position
	Signature []byte // Signature is the BLS partial over the message bytes (96 bytes)
}

// EncodePartial encodes a partial signature response.
// Format: [1B type] [4B big-endian index] [96B signature]
func EncodePartial(p *Partial) []byte {
	buf := make([]byte, 1+4+attest.BLSSignatureSize)
	buf[0] = msgTypePartial
	binary.BigEndian.PutUint32(buf[1:5], p.Index)
	copy(buf[5:], p.Signature)

	return buf
}

// DecodePartial decodes a partial signature response.
func DecodePartial(data []byte) (*Partial, error) {
	if len(data) < 1+4+attest.BLSSignatureSize {
		return nil, fmt.Errorf("partial too short: %d < %d", len(data), 1+4+attest.BLSSignatureSize)
	}

	if data[0] != msgTypePartial {
		return nil, fmt.Errorf("invalid message type: 0x%02x", data[0])
	}

	p := &Partial{
		Index:     binary.BigEndian.Uint32(data[1:5]),
		Signature: make([]byte, attest.BLSSignatureSize),
	}
	copy(p.Signature, data[5:5+attest.BLSSignatureSize])

	return p, nil
}

// EncodeRefusal encodes a refusal response.
// Format: [1B type] [1B reason]
func EncodeRefusal(reason byte) []byte {
	return []byte{msgTypeRefusal, reason}
}

// DecodeRefusal decodes a refusal response and returns the reason.
func DecodeRefusal(data []byte) (byte, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("refusal too short: %d < 2", len(data))
	}

	if data[0] != msgTypeRefusal {
		return 0, fmt.Errorf("invalid message type: 0x%02x", data[0])
	}

	return data[1], nil
}

// MessageType returns the type byte of an encoded message.
func MessageType(data []byte) (byte, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty message")
	}

	return data[0], nil
}
