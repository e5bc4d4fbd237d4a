package engine

import (
	"testing"

	"lattice/covenant"
	"lattice/fault"
	"lattice/internal/wire"
	"lattice/tx"
)

// populate funds a mixed output set and applies one spend so the source
// engine carries nonzero height and several lock types. Returns the vault
// whose funding survives into the snapshot.
func populate(t *testing.T, e *Engine, clock *testClock) *covenant.Vault {
	t.Helper()

	alicePub, alicePriv := newKeyPair(t, 0xA1)
	bobPub, _ := newKeyPair(t, 0xB2)
	ownerPub, _ := newKeyPair(t, 0x11)
	whitelist := keyLock(bobPub).Address()

	vault := newTestVault(t, 10_000, whitelist, ownerPub)

	var category [32]byte
	category[0] = 0xC1

	sp := fund(t, e, keyLock(alicePub), 1_000, nil)
	fund(t, e, vault.Lock(), 25_000, nil)
	fund(t, e, keyLock(bobPub), 750, &tx.TokenData{Category: category, Amount: 9})

	txn := &tx.Transaction{
		Inputs: []tx.Input{{Outpoint: sp.Outpoint}},
		Outputs: []tx.Output{
			{Value: 600, Lock: keyLock(bobPub)},
			{Value: 400, Lock: keyLock(alicePub)},
		},
		Locktime: clock.now,
	}
	signKeyInput(t, txn, 0, sp.Output, alicePriv)

	if _, err := e.Submit(txn); err != nil {
		t.Fatalf("populate spend: %v", err)
	}

	return vault
}

func TestSnapshotRoundTrip(t *testing.T) {
	source, clock := newTestEngine(t, 5_000)
	vault := populate(t, source, clock)

	snap, err := source.CreateSnapshot()
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	target, targetClock := newTestEngine(t, 5_000)
	if err := target.ApplySnapshot(snap); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	sourceCount, err := source.CountOutputs()
	if err != nil {
		t.Fatalf("count source outputs: %v", err)
	}
	targetCount, err := target.CountOutputs()
	if err != nil {
		t.Fatalf("count target outputs: %v", err)
	}
	if targetCount != sourceCount {
		t.Fatalf("target outputs = %d, want %d", targetCount, sourceCount)
	}

	if source.Height() != target.Height() {
		t.Fatalf("target height = %d, want %d", target.Height(), source.Height())
	}

	alicePub, alicePriv := newKeyPair(t, 0xA1)
	addr := keyLock(alicePub).Address()

	if got, want := balance(t, target, addr), balance(t, source, addr); got != want {
		t.Fatalf("restored balance = %d, want %d", got, want)
	}

	// The restored index must resolve and the restored outputs must spend
	spendables, err := target.SpendableOutputs(addr)
	if err != nil {
		t.Fatalf("restored spendable outputs: %v", err)
	}
	if len(spendables) != 1 {
		t.Fatalf("restored spendable outputs = %d, want 1", len(spendables))
	}

	sp := spendables[0]
	txn := &tx.Transaction{
		Inputs:   []tx.Input{{Outpoint: sp.Outpoint}},
		Outputs:  []tx.Output{{Value: sp.Output.Value, Lock: sp.Output.Lock}},
		Locktime: targetClock.now,
	}
	signKeyInput(t, txn, 0, sp.Output, alicePriv)

	if _, err := target.Submit(txn); err != nil {
		t.Fatalf("spend restored output: %v", err)
	}

	// The funding sequence travels with the snapshot, so re-funding content
	// identical to a restored output lands on a fresh outpoint
	before, err := target.CountOutputs()
	if err != nil {
		t.Fatalf("count outputs: %v", err)
	}
	if _, err := target.Fund(vault.Lock(), 25_000, nil); err != nil {
		t.Fatalf("fund after restore: %v", err)
	}
	after, err := target.CountOutputs()
	if err != nil {
		t.Fatalf("count outputs: %v", err)
	}
	if after != before+1 {
		t.Fatalf("output count after funding = %d, want %d", after, before+1)
	}
}

func TestSnapshotEmptyLedger(t *testing.T) {
	source, _ := newTestEngine(t, 5_000)

	snap, err := source.CreateSnapshot()
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	target, _ := newTestEngine(t, 5_000)
	if err := target.ApplySnapshot(snap); err != nil {
		t.Fatalf("apply empty snapshot: %v", err)
	}

	count, err := target.CountOutputs()
	if err != nil {
		t.Fatalf("count outputs: %v", err)
	}
	if count != 0 {
		t.Fatalf("output count = %d, want 0", count)
	}
}

func TestSnapshotRefusesNonEmptyLedger(t *testing.T) {
	source, clock := newTestEngine(t, 5_000)
	populate(t, source, clock)

	snap, err := source.CreateSnapshot()
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	target, _ := newTestEngine(t, 5_000)
	alicePub, _ := newKeyPair(t, 0xA1)
	fund(t, target, keyLock(alicePub), 50, nil)

	err = target.ApplySnapshot(snap)
	wantKind(t, err, fault.ValidationFailed)

	if got := balance(t, target, keyLock(alicePub).Address()); got != 50 {
		t.Fatalf("target balance after refusal = %d, want 50", got)
	}
}

func TestSnapshotRejectsTampering(t *testing.T) {
	source, clock := newTestEngine(t, 5_000)
	populate(t, source, clock)

	snap, err := source.CreateSnapshot()
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	t.Run("flipped checksum", func(t *testing.T) {
		raw, err := decompressSnapshot(snap)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}

		// ChecksumBytes aliases the buffer, so this edits the container
		wire.GetRootAsSnapshot(raw, 0).ChecksumBytes()[0] ^= 0xFF

		tampered, err := compressSnapshot(raw)
		if err != nil {
			t.Fatalf("recompress: %v", err)
		}

		target, _ := newTestEngine(t, 5_000)
		wantKind(t, target.ApplySnapshot(tampered), fault.InvalidParam)
	})

	t.Run("altered height", func(t *testing.T) {
		raw, err := decompressSnapshot(snap)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}

		if !wire.GetRootAsSnapshot(raw, 0).MutateHeight(99) {
			t.Fatal("mutate height")
		}

		tampered, err := compressSnapshot(raw)
		if err != nil {
			t.Fatalf("recompress: %v", err)
		}

		target, _ := newTestEngine(t, 5_000)
		wantKind(t, target.ApplySnapshot(tampered), fault.InvalidParam)
	})

	t.Run("not a snapshot", func(t *testing.T) {
		target, _ := newTestEngine(t, 5_000)
		wantKind(t, target.ApplySnapshot([]byte("not a snapshot")), fault.InvalidParam)
	})
}
