package integration

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"lattice/attest"
	"lattice/client"
	"lattice/covenant"
	"lattice/fault"
	"lattice/tx"
)

const (
	// compositionHTTPPort is the port for the composed-spend test node.
	compositionHTTPPort = 18090

	// phaseOpen is the schedule's restricted-phase boundary.
	phaseOpen = uint64(50_000)
)

// TestComposedSpendOverHTTP drives the full client flow against a running
// node: fund a vault, a schedule, an attestation gate, and a token gate,
// then compose one transaction spending all four. Every policy verdict must
// arrive intact over the wire, and a rejected composition must leave the
// ledger untouched.
func TestComposedSpendOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	clock := NewClock(phaseOpen + 1)
	node := StartNode(t, compositionHTTPPort, clock)
	cli := client.New(node.Addr)

	owner := NewWallet(t)
	recipient := NewWallet(t)

	attesterKey := GenerateKey(t)
	attester, err := attest.NewAttester(attesterKey)
	if err != nil {
		t.Fatalf("new attester: %v", err)
	}

	domain, err := attest.DomainFromString("pric")
	if err != nil {
		t.Fatalf("domain: %v", err)
	}

	recipientAddr := recipient.Address()

	vault, err := covenant.NewVault(owner.PublicKey(), 10_000, recipientAddr[:])
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	schedule, err := covenant.NewSchedule(owner.PublicKey(), phaseOpen, phaseOpen+100_000)
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}

	oracle, err := covenant.NewOracleWithMinimum(attesterKey.Public().(ed25519.PublicKey), domain, 600, 50)
	if err != nil {
		t.Fatalf("new oracle: %v", err)
	}

	gate, err := covenant.NewTokenGateFromDisplay(
		"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", 5)
	if err != nil {
		t.Fatalf("new token gate: %v", err)
	}

	carry := &tx.TokenData{Category: gate.Category(), Amount: 9}

	vaultSp := FundLock(t, cli, vault.Lock(), 20_000, nil)
	scheduleSp := FundLock(t, cli, schedule.Lock(), 5_000, nil)
	oracleSp := FundLock(t, cli, oracle.Lock(), 1_000, nil)
	gateSp := FundLock(t, cli, gate.Lock(), 1_000, carry)

	stage := func(amount, locktime uint64, att *attest.Attestation) *tx.Composer {
		return tx.NewComposer(cli).
			AddInput(vaultSp, vault.CappedSpend(owner, amount, 0, 1)).
			AddInput(scheduleSp, schedule.RestrictedSpend(owner, 2_000, 2)).
			AddInput(oracleSp, oracle.Reveal(att)).
			AddInput(gateSp, gate.Forward(4)).
			AddOutput(recipient.KeyLock(), amount, nil).
			AddOutput(vault.Lock(), 20_000-amount, nil).
			AddOutput(schedule.Lock(), 3_000, nil).
			AddOutput(owner.KeyLock(), 3_000, nil).
			AddOutput(gate.Lock(), 1_000, carry).
			SetLocktime(locktime)
	}

	attestAt := func(ts uint32) *attest.Attestation {
		att, err := attester.AttestAt(domain, ts, 9, attest.Uint32Payload(85))
		if err != nil {
			t.Fatalf("attest: %v", err)
		}

		return att
	}

	// --- before the schedule opens ---

	_, err = stage(8_000, phaseOpen-1, attestAt(uint32(phaseOpen-1))).Submit()

	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.CompositionFailed {
		t.Fatalf("expected COMPOSITION_FAILED before phase opens, got %v", err)
	}

	// The rejection must not have consumed anything.
	AssertBalance(t, cli, vault.Address(), 20_000, "vault after rejection")
	AssertBalance(t, cli, schedule.Address(), 5_000, "schedule after rejection")

	// --- above the vault limit ---

	_, err = stage(15_000, phaseOpen+1, attestAt(uint32(phaseOpen+1))).Submit()

	if !errors.As(err, &fe) || fe.Kind != fault.CompositionFailed {
		t.Fatalf("expected COMPOSITION_FAILED above the vault limit, got %v", err)
	}

	// --- all policies satisfied ---

	id, err := stage(8_000, phaseOpen+1, attestAt(uint32(phaseOpen+1))).Submit()
	if err != nil {
		t.Fatalf("submit composed transaction: %v", err)
	}

	if id == (tx.TxID{}) {
		t.Error("expected a nonzero transaction id")
	}

	AssertBalance(t, cli, recipient.Address(), 8_000, "recipient")
	AssertBalance(t, cli, vault.Address(), 12_000, "vault continuation")
	AssertBalance(t, cli, schedule.Address(), 3_000, "schedule continuation")
	AssertBalance(t, cli, owner.Address(), 3_000, "owner change")
	AssertBalance(t, cli, oracle.Address(), 0, "oracle drained")

	carried, err := cli.SpendableOutputs(gate.Address())
	if err != nil {
		t.Fatalf("gate outputs: %v", err)
	}
	if len(carried) != 1 {
		t.Fatalf("gate outputs = %d, want 1", len(carried))
	}
	if tok := carried[0].Output.Token; tok == nil || tok.Category != gate.Category() || tok.Amount != 9 {
		t.Fatalf("gate continuation token = %+v, want category preserved at amount 9", carried[0].Output.Token)
	}

	status, err := cli.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if status.Height != 1 {
		t.Errorf("expected height 1 after one applied transaction, got %d", status.Height)
	}
}

// TestSnapshotOverHTTP verifies a downloaded snapshot restores the ledger
// into a fresh node.
func TestSnapshotOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	clock := NewClock(1_000)
	node := StartNode(t, compositionHTTPPort+1, clock)
	cli := client.New(node.Addr)

	holder := NewWallet(t)
	FundLock(t, cli, holder.KeyLock(), 7_500, nil)

	snapshot, err := cli.Snapshot()
	if err != nil {
		t.Fatalf("download snapshot: %v", err)
	}

	if len(snapshot) == 0 {
		t.Fatal("expected a nonempty snapshot")
	}

	// Restore into a second node and check the balance came along.
	restored := StartNode(t, compositionHTTPPort+2, clock)
	if err := restored.Engine.ApplySnapshot(snapshot); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	restoredCli := client.New(restored.Addr)
	AssertBalance(t, restoredCli, holder.Address(), 7_500, "restored holder")
}
