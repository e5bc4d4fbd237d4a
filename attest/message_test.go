package attest

import (
	"bytes"
	"testing"

	"lattice/fault"
)

// --- Encode / DecodeMessage ---

// TestMessageRoundTrip tests encode/decode round-trips across payload sizes,
// including the empty payload.
func TestMessageRoundTrip(t *testing.T) {
	domain, err := DomainFromString("PRCE")
	if err != nil {
		t.Fatalf("domain: %v", err)
	}

	payloads := [][]byte{
		nil,
		{},
		{0x55},
		Uint32Payload(85),
		bytes.Repeat([]byte{0xAB}, 300),
	}

	for _, payload := range payloads {
		msg := &Message{
			Domain:    domain,
			Timestamp: 1_700_000_000,
			Nonce:     42,
			Payload:   payload,
		}

		encoded := msg.Encode()
		if want := MinMessageSize + len(payload); len(encoded) != want {
			t.Fatalf("encoded length: got %d, want %d", len(encoded), want)
		}

		decoded, err := DecodeMessage(encoded)
		if err != nil {
			t.Fatalf("decode payload len %d: %v", len(payload), err)
		}

		if decoded.Domain != msg.Domain {
			t.Errorf("domain: got %q, want %q", decoded.Domain, msg.Domain)
		}
		if decoded.Timestamp != msg.Timestamp {
			t.Errorf("timestamp: got %d, want %d", decoded.Timestamp, msg.Timestamp)
		}
		if decoded.Nonce != msg.Nonce {
			t.Errorf("nonce: got %d, want %d", decoded.Nonce, msg.Nonce)
		}
		if !bytes.Equal(decoded.Payload, msg.Payload) {
			t.Errorf("payload: got %x, want %x", decoded.Payload, msg.Payload)
		}
	}
}

// TestMessageLayout pins the exact wire layout so it cannot drift.
func TestMessageLayout(t *testing.T) {
	domain, _ := DomainFromString("WTHR")
	msg := &Message{
		Domain:    domain,
		Timestamp: 0x04030201,
		Nonce:     0x08070605,
		Payload:   []byte{0xAA, 0xBB},
	}

	want := []byte{
		'W', 'T', 'H', 'R', // domain, opaque bytes
		0x01, 0x02, 0x03, 0x04, // timestamp LE
		0x05, 0x06, 0x07, 0x08, // nonce LE
		0xAA, 0xBB, // payload verbatim
	}

	if got := msg.Encode(); !bytes.Equal(got, want) {
		t.Errorf("layout: got %x, want %x", got, want)
	}
}

// TestDecodeShortInput verifies anything under 12 bytes is INVALID_PARAM.
func TestDecodeShortInput(t *testing.T) {
	for _, n := range []int{0, 1, 4, 11} {
		_, err := DecodeMessage(make([]byte, n))
		if err == nil {
			t.Fatalf("decode %d bytes: expected error", n)
		}

		if fault.KindOf(err) != fault.InvalidParam {
			t.Errorf("decode %d bytes: got kind %q, want %q", n, fault.KindOf(err), fault.InvalidParam)
		}
	}

	// Exactly 12 bytes is the smallest valid message.
	if _, err := DecodeMessage(make([]byte, MinMessageSize)); err != nil {
		t.Errorf("decode 12 bytes: unexpected error %v", err)
	}
}

// TestDecodeCopiesPayload verifies the decoded payload does not alias input.
func TestDecodeCopiesPayload(t *testing.T) {
	domain, _ := DomainFromString("TEST")
	encoded := (&Message{Domain: domain, Timestamp: 1, Nonce: 1, Payload: []byte{1, 2, 3}}).Encode()

	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	encoded[12] = 0xFF
	if decoded.Payload[0] == 0xFF {
		t.Error("decoded payload aliases the input buffer")
	}
}

// --- DomainFromString / DomainFromBytes ---

// TestDomainLength verifies only 4-byte domains construct.
func TestDomainLength(t *testing.T) {
	cases := []string{"", "ABC", "ABCDE", "toolongdomain"}

	for _, s := range cases {
		_, err := DomainFromString(s)
		if err == nil {
			t.Errorf("domain %q: expected error", s)
			continue
		}

		if fault.KindOf(err) != fault.InvalidParam {
			t.Errorf("domain %q: got kind %q, want %q", s, fault.KindOf(err), fault.InvalidParam)
		}
	}

	d, err := DomainFromString("ORCL")
	if err != nil {
		t.Fatalf("4-byte domain: %v", err)
	}
	if d.String() != "ORCL" {
		t.Errorf("domain string: got %q, want %q", d.String(), "ORCL")
	}

	if _, err := DomainFromBytes([]byte{1, 2, 3, 4}); err != nil {
		t.Errorf("4 raw bytes: unexpected error %v", err)
	}
}

// --- FixedLE / FromFixedLE ---

// TestFixedLERoundTrip tests the fixed-width helpers across widths.
func TestFixedLERoundTrip(t *testing.T) {
	cases := []struct {
		value uint64
		width int
	}{
		{0, 1},
		{0x7F, 1},
		{0xFFFF, 2},
		{85, 4},
		{0xFFFFFFFF, 4},
		{1 << 40, 8},
		{1, 10}, // wider than the value: zero padded
	}

	for _, tc := range cases {
		buf := FixedLE(tc.value, tc.width)
		if len(buf) != tc.width {
			t.Errorf("width %d: got %d bytes", tc.width, len(buf))
		}

		if got := FromFixedLE(buf); got != tc.value {
			t.Errorf("round-trip %d @ width %d: got %d", tc.value, tc.width, got)
		}
	}
}

// TestFixedLETruncates documents truncation for out-of-range values.
func TestFixedLETruncates(t *testing.T) {
	buf := FixedLE(0x1FF, 1)
	if got := FromFixedLE(buf); got != 0xFF {
		t.Errorf("truncated value: got %#x, want 0xff", got)
	}
}

// --- Uint32Payload / PayloadUint32 ---

func TestPayloadUint32(t *testing.T) {
	v, err := PayloadUint32(Uint32Payload(85))
	if err != nil {
		t.Fatalf("payload head: %v", err)
	}
	if v != 85 {
		t.Errorf("payload head: got %d, want 85", v)
	}

	// Extra trailing bytes are ignored.
	v, err = PayloadUint32(append(Uint32Payload(7), 0xDE, 0xAD))
	if err != nil || v != 7 {
		t.Errorf("payload head with tail: got %d, %v", v, err)
	}

	if _, err := PayloadUint32([]byte{1, 2, 3}); fault.KindOf(err) != fault.InvalidParam {
		t.Errorf("short payload head: got kind %q, want %q", fault.KindOf(err), fault.InvalidParam)
	}
}
