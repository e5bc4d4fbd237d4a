package covenant

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"lattice/tx"
)

// testSigner signs digests with a throwaway ed25519 key.
type testSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return &testSigner{pub: pub, priv: priv}
}

func (s *testSigner) PublicKey() []byte {
	return s.pub
}

func (s *testSigner) Sign(digest [32]byte) ([]byte, error) {
	return ed25519.Sign(s.priv, digest[:]), nil
}

// stubLedger serves canned query results.
type stubLedger struct {
	balances map[tx.Address]uint64
	outputs  map[tx.Address][]tx.Spendable
}

func (l *stubLedger) Balance(addr tx.Address) (uint64, error) {
	return l.balances[addr], nil
}

func (l *stubLedger) SpendableOutputs(addr tx.Address) ([]tx.Spendable, error) {
	return l.outputs[addr], nil
}

// buildUnlock runs a builder with a fixed digest and fails the test on error.
func buildUnlock(t *testing.T, b tx.UnlockBuilder, digest [32]byte) tx.Unlock {
	t.Helper()

	u, err := b.Build(digest)
	if err != nil {
		t.Fatalf("build unlock: %v", err)
	}

	return u
}
