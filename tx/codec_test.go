package tx

import (
	"bytes"
	"testing"

	"lattice/fault"
)

// sampleTransaction builds a transaction exercising every unlock mode and
// both output shapes.
func sampleTransaction(t *testing.T) *Transaction {
	t.Helper()

	pub := bytes.Repeat([]byte{0xA1}, 32)
	sig := bytes.Repeat([]byte{0xB2}, 64)
	msg := bytes.Repeat([]byte{0xC3}, 20)

	outpoint := func(seed byte, index uint32) Outpoint {
		var o Outpoint
		for i := range o.TxID {
			o.TxID[i] = seed
		}
		o.Index = index
		return o
	}

	token := &TokenData{Amount: 77}
	for i := range token.Category {
		token.Category[i] = byte(i)
	}

	return &Transaction{
		Locktime: 1_700_000_000,
		Inputs: []Input{
			{Outpoint: outpoint(1, 0), Unlock: KeySpend{PublicKey: pub, Signature: sig}},
			{Outpoint: outpoint(2, 3), Unlock: VaultSpend{
				PublicKey:         pub,
				Signature:         sig,
				Amount:            8_000,
				RecipientIndex:    0,
				ContinuationIndex: 1,
			}},
			{Outpoint: outpoint(3, 1), Unlock: VaultDrain{PublicKey: pub, Signature: sig}},
			{Outpoint: outpoint(4, 0), Unlock: ScheduleSpend{
				PublicKey:         pub,
				Signature:         sig,
				Phase:             1,
				Amount:            500,
				ContinuationIndex: 2,
			}},
			{Outpoint: outpoint(5, 9), Unlock: OracleReveal{Message: msg, Signature: sig}},
			{Outpoint: outpoint(6, 2), Unlock: QuorumReveal{
				Message:       msg,
				AggregatedSig: bytes.Repeat([]byte{0xD4}, 96),
				SignerMask:    []byte{0b00000101},
				Committee: [][]byte{
					bytes.Repeat([]byte{0xE5}, 48),
					bytes.Repeat([]byte{0xE6}, 48),
					bytes.Repeat([]byte{0xE7}, 48),
				},
			}},
			{Outpoint: outpoint(7, 0), Unlock: TokenForward{ContinuationIndex: 0}},
		},
		Outputs: []Output{
			{Value: 8_000, Lock: KeyLock(pub)},
			{Value: 2_000, Lock: Lock{Type: LockVault, Data: bytes.Repeat([]byte{0xF8}, 72)}},
			{Value: 0, Lock: KeyLock(pub), Token: token},
		},
	}
}

// --- EncodeTransaction / DecodeTransaction ---

// TestTransactionRoundTrip verifies decode(encode(tx)) reproduces the exact
// canonical bytes for a transaction using every unlock mode.
func TestTransactionRoundTrip(t *testing.T) {
	original := sampleTransaction(t)
	encoded := EncodeTransaction(original)

	decoded, err := DecodeTransaction(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(EncodeTransaction(decoded), encoded) {
		t.Fatal("re-encoding the decoded transaction changed the bytes")
	}

	if decoded.Locktime != original.Locktime {
		t.Errorf("locktime: got %d, want %d", decoded.Locktime, original.Locktime)
	}
	if len(decoded.Inputs) != len(original.Inputs) {
		t.Fatalf("inputs: got %d, want %d", len(decoded.Inputs), len(original.Inputs))
	}
	if len(decoded.Outputs) != len(original.Outputs) {
		t.Fatalf("outputs: got %d, want %d", len(decoded.Outputs), len(original.Outputs))
	}

	vault, ok := decoded.Inputs[1].Unlock.(VaultSpend)
	if !ok {
		t.Fatalf("input 1: got %T, want VaultSpend", decoded.Inputs[1].Unlock)
	}
	if vault.Amount != 8_000 || vault.RecipientIndex != 0 || vault.ContinuationIndex != 1 {
		t.Errorf("vault spend fields: %+v", vault)
	}

	quorum, ok := decoded.Inputs[5].Unlock.(QuorumReveal)
	if !ok {
		t.Fatalf("input 5: got %T, want QuorumReveal", decoded.Inputs[5].Unlock)
	}
	if len(quorum.Committee) != 3 || len(quorum.Committee[0]) != 48 {
		t.Errorf("committee: %d keys", len(quorum.Committee))
	}

	if decoded.Outputs[2].Token == nil || decoded.Outputs[2].Token.Amount != 77 {
		t.Error("token data lost in round trip")
	}
}

// TestDecodeTransactionRejectsTruncation verifies every strict prefix of a
// valid encoding is rejected.
func TestDecodeTransactionRejectsTruncation(t *testing.T) {
	encoded := EncodeTransaction(sampleTransaction(t))

	for n := 0; n < len(encoded); n++ {
		if _, err := DecodeTransaction(encoded[:n]); fault.KindOf(err) != fault.InvalidParam {
			t.Fatalf("prefix of %d bytes: got kind %q, want %q", n, fault.KindOf(err), fault.InvalidParam)
		}
	}
}

// TestDecodeTransactionRejectsTrailing verifies appended bytes are rejected.
func TestDecodeTransactionRejectsTrailing(t *testing.T) {
	encoded := append(EncodeTransaction(sampleTransaction(t)), 0x00)

	if _, err := DecodeTransaction(encoded); fault.KindOf(err) != fault.InvalidParam {
		t.Fatalf("got kind %q, want %q", fault.KindOf(err), fault.InvalidParam)
	}
}

// TestDecodeTransactionRejectsVersion verifies a future version byte fails.
func TestDecodeTransactionRejectsVersion(t *testing.T) {
	encoded := EncodeTransaction(sampleTransaction(t))
	encoded[0] = 2

	if _, err := DecodeTransaction(encoded); fault.KindOf(err) != fault.InvalidParam {
		t.Fatalf("got kind %q, want %q", fault.KindOf(err), fault.InvalidParam)
	}
}

// TestDecodeUnlockRejects covers unknown modes and malformed descriptors.
func TestDecodeUnlockRejects(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"unknown mode", []byte{0xFF}},
		{"key spend short", append([]byte{byte(ModeKeySpend)}, bytes.Repeat([]byte{0}, 40)...)},
		{"token forward trailing", append([]byte{byte(ModeTokenForward)}, bytes.Repeat([]byte{0}, 8)...)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeUnlock(tc.buf); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// --- TxID / SigDigest ---

// TestIDStableUnderSigning verifies attaching unlock data does not move the
// transaction id, while changing an output does.
func TestIDStableUnderSigning(t *testing.T) {
	signed := sampleTransaction(t)
	id := signed.ID()

	unsigned := sampleTransaction(t)
	for i := range unsigned.Inputs {
		unsigned.Inputs[i].Unlock = nil
	}
	if unsigned.ID() != id {
		t.Error("unlock data changed the transaction id")
	}

	moved := sampleTransaction(t)
	moved.Outputs[0].Value++
	if moved.ID() == id {
		t.Error("output change did not move the transaction id")
	}
}

// TestSigDigest verifies the signing digest covers outputs, the input index,
// and the spent output, but not unlock data.
func TestSigDigest(t *testing.T) {
	prev := Output{Value: 10_000, Lock: KeyLock(bytes.Repeat([]byte{0x31}, 32))}

	signed := sampleTransaction(t)
	unsigned := sampleTransaction(t)
	for i := range unsigned.Inputs {
		unsigned.Inputs[i].Unlock = nil
	}

	base := SigDigest(signed, 0, prev)

	if SigDigest(unsigned, 0, prev) != base {
		t.Error("unlock data changed the signing digest")
	}

	if SigDigest(signed, 1, prev) == base {
		t.Error("input index should be part of the digest")
	}

	otherPrev := prev
	otherPrev.Value++
	if SigDigest(signed, 0, otherPrev) == base {
		t.Error("spent output should be part of the digest")
	}

	altered := sampleTransaction(t)
	altered.Outputs[0].Value++
	if SigDigest(altered, 0, prev) == base {
		t.Error("transaction outputs should be part of the digest")
	}
}

// --- EncodeOutput / DecodeOutput ---

func TestOutputRoundTrip(t *testing.T) {
	token := &TokenData{Amount: 123}
	token.Category[0] = 0x5A

	cases := []Output{
		{Value: 42, Lock: KeyLock(bytes.Repeat([]byte{0x01}, 32))},
		{Value: 0, Lock: Lock{Type: LockTokenGate, Data: bytes.Repeat([]byte{0x02}, 40)}, Token: token},
	}

	for i, out := range cases {
		encoded := EncodeOutput(out)

		decoded, err := DecodeOutput(encoded)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}

		if !bytes.Equal(EncodeOutput(decoded), encoded) {
			t.Errorf("case %d: re-encoding changed the bytes", i)
		}
	}
}

func TestDecodeOutputRejects(t *testing.T) {
	out := Output{Value: 42, Lock: KeyLock(bytes.Repeat([]byte{0x01}, 32))}
	encoded := EncodeOutput(out)

	if _, err := DecodeOutput(encoded[:len(encoded)-1]); fault.KindOf(err) != fault.InvalidParam {
		t.Error("truncated output should be rejected")
	}

	if _, err := DecodeOutput(append(encoded, 0)); fault.KindOf(err) != fault.InvalidParam {
		t.Error("trailing bytes should be rejected")
	}

	badFlag := EncodeOutput(out)
	badFlag[len(badFlag)-1] = 2
	if _, err := DecodeOutput(badFlag); fault.KindOf(err) != fault.InvalidParam {
		t.Error("token flag 2 should be rejected")
	}
}

// --- EncodeOutpoint / DecodeOutpoint ---

func TestOutpointRoundTrip(t *testing.T) {
	var o Outpoint
	for i := range o.TxID {
		o.TxID[i] = byte(i * 7)
	}
	o.Index = 0xDEADBEEF

	decoded, err := DecodeOutpoint(EncodeOutpoint(o))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != o {
		t.Errorf("got %+v, want %+v", decoded, o)
	}

	if _, err := DecodeOutpoint(make([]byte, 35)); fault.KindOf(err) != fault.InvalidParam {
		t.Error("short outpoint should be rejected")
	}
}
