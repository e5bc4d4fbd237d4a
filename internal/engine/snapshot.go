package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"lattice/fault"
	"lattice/internal/storage"
	"lattice/internal/wire"
	"lattice/tx"
)

// snapshotEntry holds one unspent output's canonical bytes.
type snapshotEntry struct {
	outpoint []byte
	output   []byte
}

// CreateSnapshot serializes the full output set into a compressed container:
// zstd over a flatbuffer of sorted canonical entries plus a blake3 checksum.
func (e *Engine) CreateSnapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.collectEntries()
	if err != nil {
		return nil, fmt.Errorf("collect outputs:\n%w", err)
	}

	data := buildSnapshot(e.height, e.fundSeq, e.now(), entries)

	return compressSnapshot(data)
}

// collectEntries copies every unspent output out of the store.
func (e *Engine) collectEntries() ([]snapshotEntry, error) {
	var entries []snapshotEntry

	err := e.store.IteratePrefix([]byte(prefixOutput), func(key, value []byte) error {
		// Copy key and value to avoid iterator invalidation
		outpoint := make([]byte, len(key)-len(prefixOutput))
		copy(outpoint, key[len(prefixOutput):])

		output := make([]byte, len(value))
		copy(output, value)

		entries = append(entries, snapshotEntry{outpoint: outpoint, output: output})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// buildSnapshot creates the FlatBuffers container with checksum.
func buildSnapshot(height, fundSeq, capturedAt uint64, entries []snapshotEntry) []byte {
	// Sort by outpoint for a deterministic checksum
	sortEntries(entries)
	checksum := computeChecksum(height, fundSeq, entries)

	builder := flatbuffers.NewBuilder(1024)

	entryOffsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, entry := range entries {
		outpointOffset := builder.CreateByteVector(entry.outpoint)
		outputOffset := builder.CreateByteVector(entry.output)

		wire.SnapshotEntryStart(builder)
		wire.SnapshotEntryAddOutpoint(builder, outpointOffset)
		wire.SnapshotEntryAddOutput(builder, outputOffset)
		entryOffsets[i] = wire.SnapshotEntryEnd(builder)
	}

	wire.SnapshotStartEntriesVector(builder, len(entryOffsets))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesVector := builder.EndVector(len(entryOffsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	wire.SnapshotStart(builder)
	wire.SnapshotAddHeight(builder, height)
	wire.SnapshotAddFundSeq(builder, fundSeq)
	wire.SnapshotAddCapturedAt(builder, capturedAt)
	wire.SnapshotAddEntries(builder, entriesVector)
	wire.SnapshotAddChecksum(builder, checksumOffset)
	offset := wire.SnapshotEnd(builder)
	builder.Finish(offset)

	return builder.FinishedBytes()
}

// sortEntries sorts entries by outpoint for deterministic ordering.
func sortEntries(entries []snapshotEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].outpoint, entries[j].outpoint) < 0
	})
}

// computeChecksum computes a blake3 checksum over the canonical snapshot
// content: the counters, then each sorted entry length-prefixed.
func computeChecksum(height, fundSeq uint64, entries []snapshotEntry) [32]byte {
	hasher := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	hasher.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], fundSeq)
	hasher.Write(buf[:])

	for _, entry := range entries {
		hasher.Write(entry.outpoint)
		binary.BigEndian.PutUint32(buf[:4], uint32(len(entry.output)))
		hasher.Write(buf[:4])
		hasher.Write(entry.output)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// compressSnapshot compresses container bytes using zstd.
func compressSnapshot(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompressSnapshot decompresses zstd-compressed container bytes.
func decompressSnapshot(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// ApplySnapshot restores a snapshot into an empty ledger. A ledger that
// already holds outputs refuses the restore; wiping live state is an
// operator decision, not an API side effect.
func (e *Engine) ApplySnapshot(compressed []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := decompressSnapshot(compressed)
	if err != nil {
		return fault.InvalidParamf("snapshot: decompress: %v", err)
	}

	snapshot := wire.GetRootAsSnapshot(data, 0)

	entries, err := extractEntries(snapshot)
	if err != nil {
		return fault.InvalidParamf("snapshot: %v", err)
	}

	if err := verifyChecksum(snapshot, entries); err != nil {
		return fault.InvalidParamf("snapshot: %v", err)
	}

	occupied, err := e.hasOutputs()
	if err != nil {
		return fmt.Errorf("inspect ledger:\n%w", err)
	}
	if occupied {
		return fault.ValidationFailedf("snapshot restore needs an empty ledger")
	}

	sets := make([]storage.KeyValue, 0, len(entries)*2+1)
	for i, entry := range entries {
		op, err := tx.DecodeOutpoint(entry.outpoint)
		if err != nil {
			return fault.InvalidParamf("snapshot: entry %d: %v", i, err)
		}

		out, err := tx.DecodeOutput(entry.output)
		if err != nil {
			return fault.InvalidParamf("snapshot: entry %d: %v", i, err)
		}

		sets = append(sets, storage.KeyValue{Key: outputKey(op), Value: entry.output})
		sets = append(sets, storage.KeyValue{Key: addrKey(out.Lock.Address(), op), Value: []byte{}})
	}
	sets = append(sets, storage.KeyValue{Key: []byte(keyHeight), Value: encodeCounter(snapshot.Height())})
	sets = append(sets, storage.KeyValue{Key: []byte(keyFundSeq), Value: encodeCounter(snapshot.FundSeq())})

	if err := e.store.ApplyBatch(nil, sets); err != nil {
		return fmt.Errorf("apply snapshot:\n%w", err)
	}

	e.height = snapshot.Height()
	e.fundSeq = snapshot.FundSeq()

	return nil
}

// extractEntries copies all entries out of the container; flatbuffers getters
// alias the underlying buffer.
func extractEntries(snapshot *wire.Snapshot) ([]snapshotEntry, error) {
	entries := make([]snapshotEntry, snapshot.EntriesLength())

	var entry wire.SnapshotEntry
	for i := 0; i < snapshot.EntriesLength(); i++ {
		if !snapshot.Entries(&entry, i) {
			return nil, fmt.Errorf("read entry %d", i)
		}

		outpoint := make([]byte, entry.OutpointLength())
		copy(outpoint, entry.OutpointBytes())

		output := make([]byte, entry.OutputLength())
		copy(output, entry.OutputBytes())

		entries[i] = snapshotEntry{outpoint: outpoint, output: output}
	}

	return entries, nil
}

// verifyChecksum recomputes the checksum over the carried entries.
func verifyChecksum(snapshot *wire.Snapshot, entries []snapshotEntry) error {
	stored := snapshot.ChecksumBytes()
	if len(stored) != 32 {
		return fmt.Errorf("checksum length %d, want 32", len(stored))
	}

	sorted := make([]snapshotEntry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	computed := computeChecksum(snapshot.Height(), snapshot.FundSeq(), sorted)
	if !bytes.Equal(computed[:], stored) {
		return fmt.Errorf("checksum mismatch")
	}

	return nil
}
