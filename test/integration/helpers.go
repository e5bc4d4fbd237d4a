package integration

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"lattice/client"
	"lattice/internal/api"
	"lattice/internal/engine"
	"lattice/internal/storage"
	"lattice/tx"
)

// Clock is a settable ledger clock shared between a test and its node.
type Clock struct {
	v atomic.Uint64
}

// NewClock starts the clock at the given unix time.
func NewClock(start uint64) *Clock {
	c := &Clock{}
	c.v.Store(start)

	return c
}

// Now returns the current clock value.
func (c *Clock) Now() uint64 { return c.v.Load() }

// Set moves the clock to the given time.
func (c *Clock) Set(t uint64) { c.v.Store(t) }

// Node is an in-process node: store, engine, and HTTP API on a local port.
type Node struct {
	Addr   string         // Addr is the HTTP API address
	Engine *engine.Engine // Engine is the ledger engine behind the API
	Clock  *Clock         // Clock is the pinned ledger clock

	api   *api.Server
	store *storage.Store
}

// StartNode brings up a node on the given port with a pinned clock and
// blocks until its API answers.
func StartNode(t *testing.T, port int, clock *Clock) *Node {
	t.Helper()

	store, err := storage.Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng, err := engine.New(store, engine.WithNow(clock.Now))
	if err != nil {
		t.Fatalf("init engine: %v", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)

	srv := api.New(addr, eng, eng, eng, eng, eng)
	if err := srv.Start(); err != nil {
		t.Fatalf("start api: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	WaitForHealth(t, addr, 5*time.Second)

	return &Node{Addr: addr, Engine: eng, Clock: clock, api: srv, store: store}
}

// WaitForHealth polls GET /health until the node answers or the timeout
// expires.
func WaitForHealth(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}

		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("node %s not healthy after %v", addr, timeout)
}

// GenerateKey creates a random ed25519 key pair.
func GenerateKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

// NewWallet creates a fresh client wallet.
func NewWallet(t *testing.T) *client.Wallet {
	t.Helper()

	w, err := client.NewWallet()
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}

	return w
}

// FundLock faucets one output under the given lock and returns it as a
// spendable fetched back through the client. A nil token funds plain value.
func FundLock(t *testing.T, cli *client.Client, lock tx.Lock, value uint64, token *tx.TokenData) tx.Spendable {
	t.Helper()

	op, err := cli.Fund(lock, value, token)
	if err != nil {
		t.Fatalf("fund lock: %v", err)
	}

	outputs, err := cli.SpendableOutputs(lock.Address())
	if err != nil {
		t.Fatalf("get outputs: %v", err)
	}

	for _, sp := range outputs {
		if sp.Outpoint == op {
			return sp
		}
	}

	t.Fatalf("funded output %x:%d not found", op.TxID[:8], op.Index)
	return tx.Spendable{}
}

// AssertBalance checks an address balance through the client.
func AssertBalance(t *testing.T, cli *client.Client, addr tx.Address, want uint64, label string) {
	t.Helper()

	got, err := cli.Balance(addr)
	if err != nil {
		t.Fatalf("%s: balance: %v", label, err)
	}

	if got != want {
		t.Errorf("%s: balance = %d, want %d", label, got, want)
	}
}
