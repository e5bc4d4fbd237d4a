package tx

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"lattice/fault"
)

// txVersion is the canonical encoding version.
const txVersion = 1

// Canonical transaction layout (all integers little-endian):
//
//	u16 version | u64 locktime | u16 inputCount | inputs | u16 outputCount | outputs
//
// Input:  [32B txid] [u32 index] [u16 unlockLen] [unlock bytes]
// Output: [u64 value] [u8 lockType] [u16 lockDataLen] [lockData]
//         [u8 tokenFlag] [32B category + u64 amount when flag=1]
//
// The encoding is canonical: equal transactions produce equal bytes, which
// is what makes blake3 over it usable as an id and a signing digest.

// EncodeTransaction serializes a transaction with its unlock data. Inputs
// whose unlock is nil encode with a zero-length unlock; the engine rejects
// such a transaction, so the case only appears in partially built values.
func EncodeTransaction(t *Transaction) []byte {
	return encodeTransactionBody(t, true)
}

// DecodeTransaction parses a canonical transaction, rejecting truncated
// input and trailing bytes.
func DecodeTransaction(b []byte) (*Transaction, error) {
	r := &reader{buf: b}

	version := r.u16()
	if r.err == nil && version != txVersion {
		return nil, fault.InvalidParamf("transaction: version %d, want %d", version, txVersion)
	}

	t := &Transaction{Locktime: r.u64()}

	inputCount := int(r.u16())
	for i := 0; i < inputCount && r.err == nil; i++ {
		var in Input
		copy(in.Outpoint.TxID[:], r.bytes(32))
		in.Outpoint.Index = r.u32()

		unlockLen := int(r.u16())
		if unlockLen > 0 {
			unlock, err := decodeUnlock(r.bytes(unlockLen))
			if err != nil {
				return nil, fault.InvalidParamf("transaction: input %d: %v", i, err)
			}
			in.Unlock = unlock
		}

		t.Inputs = append(t.Inputs, in)
	}

	outputCount := int(r.u16())
	for i := 0; i < outputCount && r.err == nil; i++ {
		out, err := decodeOutputFrom(r)
		if err != nil {
			return nil, fault.InvalidParamf("transaction: output %d: %v", i, err)
		}

		t.Outputs = append(t.Outputs, out)
	}

	if r.err != nil {
		return nil, fault.InvalidParamf("transaction: truncated at offset %d", r.off)
	}

	if r.off != len(b) {
		return nil, fault.InvalidParamf("transaction: %d trailing bytes", len(b)-r.off)
	}

	return t, nil
}

// SigDigest computes the signing digest for one input: blake3 over a domain
// tag, the unlock-free transaction body, the input index, and the spent
// output. Unlock data is excluded on purpose; every unlock field the engine
// trusts is cross-checked against the signed outputs.
func SigDigest(t *Transaction, inputIndex int, prevOut Output) [32]byte {
	h := blake3.New()
	h.Write([]byte("lattice-sig-v1"))
	h.Write(encodeTransactionBody(t, false))

	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], uint32(inputIndex))
	h.Write(idx[:])
	h.Write(EncodeOutput(prevOut))

	var digest [32]byte
	h.Sum(digest[:0])

	return digest
}

// EncodeOutpoint serializes an outpoint as [32B txid][u32 index], the form
// used in transaction bodies and as storage keys.
func EncodeOutpoint(o Outpoint) []byte {
	buf := make([]byte, 36)
	copy(buf[:32], o.TxID[:])
	binary.LittleEndian.PutUint32(buf[32:], o.Index)

	return buf
}

// DecodeOutpoint parses a 36-byte outpoint.
func DecodeOutpoint(b []byte) (Outpoint, error) {
	var o Outpoint
	if len(b) != 36 {
		return o, fault.InvalidParamf("outpoint: got %d bytes, want 36", len(b))
	}

	copy(o.TxID[:], b[:32])
	o.Index = binary.LittleEndian.Uint32(b[32:])

	return o, nil
}

// EncodeOutput serializes one output, the same bytes whether it appears in a
// transaction, under a storage key, or in a snapshot entry.
func EncodeOutput(out Output) []byte {
	buf := make([]byte, 0, 8+1+2+len(out.Lock.Data)+1+40)
	buf = appendU64(buf, out.Value)
	buf = append(buf, byte(out.Lock.Type))
	buf = appendU16(buf, uint16(len(out.Lock.Data)))
	buf = append(buf, out.Lock.Data...)

	if out.Token != nil {
		buf = append(buf, 1)
		buf = append(buf, out.Token.Category[:]...)
		buf = appendU64(buf, out.Token.Amount)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DecodeOutput parses one output, rejecting trailing bytes.
func DecodeOutput(b []byte) (Output, error) {
	r := &reader{buf: b}

	out, err := decodeOutputFrom(r)
	if err != nil {
		return Output{}, err
	}

	if r.err != nil {
		return Output{}, fault.InvalidParamf("output: truncated at offset %d", r.off)
	}

	if r.off != len(b) {
		return Output{}, fault.InvalidParamf("output: %d trailing bytes", len(b)-r.off)
	}

	return out, nil
}

// decodeOutputFrom parses one output at the reader's position.
func decodeOutputFrom(r *reader) (Output, error) {
	out := Output{Value: r.u64()}

	out.Lock.Type = LockType(r.u8())
	dataLen := int(r.u16())
	if dataLen > 0 {
		data := make([]byte, dataLen)
		copy(data, r.bytes(dataLen))
		out.Lock.Data = data
	}

	switch flag := r.u8(); flag {
	case 0:
	case 1:
		token := &TokenData{}
		copy(token.Category[:], r.bytes(32))
		token.Amount = r.u64()
		out.Token = token
	default:
		if r.err == nil {
			return Output{}, fault.InvalidParamf("token flag: got %d, want 0 or 1", flag)
		}
	}

	if r.err != nil {
		return Output{}, fault.InvalidParamf("output: truncated at offset %d", r.off)
	}

	return out, nil
}

// encodeTransactionBody serializes the shared body. With withUnlocks=false
// every input carries a zero-length unlock, which is the txid and sighash
// form.
func encodeTransactionBody(t *Transaction, withUnlocks bool) []byte {
	buf := make([]byte, 0, 16+len(t.Inputs)*40+len(t.Outputs)*56)
	buf = appendU16(buf, txVersion)
	buf = appendU64(buf, t.Locktime)

	buf = appendU16(buf, uint16(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.Outpoint.TxID[:]...)
		buf = appendU32(buf, in.Outpoint.Index)

		if withUnlocks && in.Unlock != nil {
			unlock := encodeUnlock(in.Unlock)
			buf = appendU16(buf, uint16(len(unlock)))
			buf = append(buf, unlock...)
		} else {
			buf = appendU16(buf, 0)
		}
	}

	buf = appendU16(buf, uint16(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = append(buf, EncodeOutput(out)...)
	}

	return buf
}

// encodeUnlock serializes an unlock descriptor as [u8 mode][body].
func encodeUnlock(u Unlock) []byte {
	buf := []byte{byte(u.Mode())}

	switch v := u.(type) {
	case KeySpend:
		buf = append(buf, v.PublicKey...)
		buf = append(buf, v.Signature...)

	case VaultSpend:
		buf = append(buf, v.PublicKey...)
		buf = append(buf, v.Signature...)
		buf = appendU64(buf, v.Amount)
		buf = appendU32(buf, v.RecipientIndex)
		buf = appendU32(buf, v.ContinuationIndex)

	case VaultDrain:
		buf = append(buf, v.PublicKey...)
		buf = append(buf, v.Signature...)

	case ScheduleSpend:
		buf = append(buf, v.PublicKey...)
		buf = append(buf, v.Signature...)
		buf = append(buf, v.Phase)
		buf = appendU64(buf, v.Amount)
		buf = appendU32(buf, v.ContinuationIndex)

	case OracleReveal:
		buf = appendU16(buf, uint16(len(v.Message)))
		buf = append(buf, v.Message...)
		buf = append(buf, v.Signature...)

	case QuorumReveal:
		buf = appendU16(buf, uint16(len(v.Message)))
		buf = append(buf, v.Message...)
		buf = append(buf, v.AggregatedSig...)
		buf = appendU16(buf, uint16(len(v.SignerMask)))
		buf = append(buf, v.SignerMask...)
		buf = appendU16(buf, uint16(len(v.Committee)))
		for _, pk := range v.Committee {
			buf = append(buf, pk...)
		}

	case TokenForward:
		buf = appendU32(buf, v.ContinuationIndex)
	}

	return buf
}

// decodeUnlock parses an unlock descriptor.
func decodeUnlock(b []byte) (Unlock, error) {
	if len(b) == 0 {
		return nil, fault.InvalidParamf("unlock: empty")
	}

	r := &reader{buf: b, off: 1}
	mode := UnlockMode(b[0])

	var u Unlock

	switch mode {
	case ModeKeySpend:
		u = KeySpend{PublicKey: r.copyBytes(32), Signature: r.copyBytes(64)}

	case ModeVaultSpend:
		u = VaultSpend{
			PublicKey:         r.copyBytes(32),
			Signature:         r.copyBytes(64),
			Amount:            r.u64(),
			RecipientIndex:    r.u32(),
			ContinuationIndex: r.u32(),
		}

	case ModeVaultDrain:
		u = VaultDrain{PublicKey: r.copyBytes(32), Signature: r.copyBytes(64)}

	case ModeScheduleSpend:
		u = ScheduleSpend{
			PublicKey:         r.copyBytes(32),
			Signature:         r.copyBytes(64),
			Phase:             r.u8(),
			Amount:            r.u64(),
			ContinuationIndex: r.u32(),
		}

	case ModeOracleReveal:
		msgLen := int(r.u16())
		u = OracleReveal{Message: r.copyBytes(msgLen), Signature: r.copyBytes(64)}

	case ModeQuorumReveal:
		msgLen := int(r.u16())
		qr := QuorumReveal{
			Message:       r.copyBytes(msgLen),
			AggregatedSig: r.copyBytes(96),
		}
		maskLen := int(r.u16())
		qr.SignerMask = r.copyBytes(maskLen)

		count := int(r.u16())
		for i := 0; i < count && r.err == nil; i++ {
			qr.Committee = append(qr.Committee, r.copyBytes(48))
		}
		u = qr

	case ModeTokenForward:
		u = TokenForward{ContinuationIndex: r.u32()}

	default:
		return nil, fault.InvalidParamf("unlock: unknown mode 0x%02x", byte(mode))
	}

	if r.err != nil {
		return nil, fault.InvalidParamf("unlock mode 0x%02x: truncated at offset %d", byte(mode), r.off)
	}

	if r.off != len(b) {
		return nil, fault.InvalidParamf("unlock mode 0x%02x: %d trailing bytes", byte(mode), len(b)-r.off)
	}

	return u, nil
}

// --- little-endian append helpers ---

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// reader is a bounds-checked cursor over an encoded buffer. The first
// underflow latches err and subsequent reads return zero values, so decoders
// can read a full structure and check err once.
type reader struct {
	buf []byte
	off int
	err error
}

// bytes returns the next n bytes without copying.
func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}

	if n < 0 || r.off+n > len(r.buf) {
		r.err = fault.InvalidParamf("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return nil
	}

	b := r.buf[r.off : r.off+n]
	r.off += n

	return b
}

// copyBytes returns an owned copy of the next n bytes.
func (r *reader) copyBytes(n int) []byte {
	b := r.bytes(n)
	if b == nil {
		return nil
	}

	out := make([]byte, n)
	copy(out, b)

	return out
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
