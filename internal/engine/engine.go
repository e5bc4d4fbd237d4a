// Package engine is the reference ledger engine: a single-authority UTXO
// store where every output carries its spending policy and a submitted
// transaction either applies in full or not at all.
//
// Validation is deterministic in (state, transaction, clock). The
// transaction's locktime is its finality threshold: the engine accepts the
// transaction only once the clock reaches it, and every time-dependent rule
// (schedule phases, attestation freshness) is evaluated against the
// threshold, never against the wall clock directly.
package engine

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"lattice/fault"
	"lattice/internal/logger"
	"lattice/internal/storage"
	"lattice/tx"
)

// Storage key prefixes.
//
//	u:<outpoint 36>            -> canonical output encoding
//	a:<address 32><outpoint 36> -> empty (address index entry)
//	m:height, m:fundseq        -> u64 LE counters
const (
	prefixOutput = "u:"
	prefixAddr   = "a:"
	keyHeight    = "m:height"
	keyFundSeq   = "m:fundseq"
)

// Option configures an Engine.
type Option func(*Engine)

// WithNow injects the clock, unix seconds. Tests pin it; production uses the
// wall clock.
func WithNow(now func() uint64) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithGenesis funds the given outputs when the engine opens an empty store.
// A store that has ever applied a transaction or a funding keeps its state
// and the allocations are ignored.
func WithGenesis(outputs []tx.Output) Option {
	return func(e *Engine) {
		e.genesis = outputs
	}
}

// Engine validates and applies transactions against the stored output set.
type Engine struct {
	store   *storage.Store
	now     func() uint64
	genesis []tx.Output

	mu      sync.Mutex
	height  uint64 // applied transaction count
	fundSeq uint64 // issued funding count
}

// New opens an engine over the given store, loading its counters and
// applying genesis allocations to a fresh store.
func New(store *storage.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store: store,
		now:   func() uint64 { return uint64(time.Now().Unix()) },
	}

	for _, opt := range opts {
		opt(e)
	}

	var err error
	if e.height, err = e.loadCounter(keyHeight); err != nil {
		return nil, fmt.Errorf("load height:\n%w", err)
	}
	if e.fundSeq, err = e.loadCounter(keyFundSeq); err != nil {
		return nil, fmt.Errorf("load fund sequence:\n%w", err)
	}

	if e.height == 0 && e.fundSeq == 0 && len(e.genesis) > 0 {
		for _, out := range e.genesis {
			if _, err := e.Fund(out.Lock, out.Value, out.Token); err != nil {
				return nil, fmt.Errorf("apply genesis allocation:\n%w", err)
			}
		}

		logger.Info("genesis allocations applied", "outputs", len(e.genesis))
	}

	return e, nil
}

// Now returns the engine's current clock reading.
func (e *Engine) Now() uint64 {
	return e.now()
}

// Height returns the number of applied transactions.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.height
}

// Output loads one unspent output, reporting whether it exists.
func (e *Engine) Output(op tx.Outpoint) (tx.Output, bool, error) {
	raw, err := e.store.Get(outputKey(op))
	if err != nil {
		return tx.Output{}, false, fmt.Errorf("load output:\n%w", err)
	}
	if raw == nil {
		return tx.Output{}, false, nil
	}

	out, err := tx.DecodeOutput(raw)
	if err != nil {
		return tx.Output{}, false, fmt.Errorf("decode stored output:\n%w", err)
	}

	return out, true, nil
}

// SpendableOutputs lists the unspent outputs held at an address, ordered by
// outpoint bytes. The order is stable across calls and restarts.
func (e *Engine) SpendableOutputs(addr tx.Address) ([]tx.Spendable, error) {
	prefix := addrPrefix(addr)

	var spendables []tx.Spendable
	err := e.store.IteratePrefix(prefix, func(key, _ []byte) error {
		op, err := tx.DecodeOutpoint(key[len(prefix):])
		if err != nil {
			return fmt.Errorf("index key %x:\n%w", key, err)
		}

		out, ok, err := e.Output(op)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("index entry without output: %s:%d", op.TxID, op.Index)
		}

		spendables = append(spendables, tx.Spendable{Outpoint: op, Output: out})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return spendables, nil
}

// Balance sums the unspent value held at an address.
func (e *Engine) Balance(addr tx.Address) (uint64, error) {
	spendables, err := e.SpendableOutputs(addr)
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, sp := range spendables {
		next := total + sp.Output.Value
		if next < total {
			return 0, fmt.Errorf("balance overflow at %s", addr)
		}
		total = next
	}

	return total, nil
}

// Fund issues a new output outside the transaction flow, a development
// affordance standing in for real issuance. The outpoint is derived from a
// persistent sequence so repeated identical fundings stay distinct.
func (e *Engine) Fund(lock tx.Lock, value uint64, token *tx.TokenData) (tx.Outpoint, error) {
	if value == 0 && token == nil {
		return tx.Outpoint{}, fault.InvalidParamf("funding carries neither value nor tokens")
	}
	if len(lock.Data) == 0 {
		return tx.Outpoint{}, fault.InvalidParamf("funding lock has no data")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := tx.Output{Value: value, Lock: lock, Token: token.Clone()}
	op := fundOutpoint(e.fundSeq, out)

	sets := []storage.KeyValue{
		{Key: outputKey(op), Value: tx.EncodeOutput(out)},
		{Key: addrKey(lock.Address(), op), Value: []byte{}},
		{Key: []byte(keyFundSeq), Value: encodeCounter(e.fundSeq + 1)},
	}

	if err := e.store.ApplyBatch(nil, sets); err != nil {
		return tx.Outpoint{}, fmt.Errorf("apply funding:\n%w", err)
	}

	e.fundSeq++

	logger.Debug("output funded",
		"address", lock.Address(),
		"value", value,
		"outpoint", fmt.Sprintf("%s:%d", op.TxID, op.Index),
	)

	return op, nil
}

// Submit validates the transaction and applies it atomically, returning its
// id. Any rule violation leaves the state untouched.
func (e *Engine) Submit(t *tx.Transaction) (tx.TxID, error) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	spent, err := e.validateTransaction(t)
	if err != nil {
		return tx.TxID{}, err
	}

	id, err := e.apply(t, spent)
	if err != nil {
		return tx.TxID{}, err
	}

	logger.Debug("transaction applied",
		"tx", id,
		"inputs", len(t.Inputs),
		"outputs", len(t.Outputs),
		"height", e.height,
		logger.Timed(start),
	)

	return id, nil
}

// validateTransaction runs the full validation pipeline and returns the
// resolved spent outputs on success.
func (e *Engine) validateTransaction(t *tx.Transaction) ([]tx.Output, error) {
	// 1. Structure: nonempty sides, no duplicate inputs
	if err := validateStructure(t); err != nil {
		return nil, err
	}

	// 2. Finality: the threshold must have been reached
	if now := e.now(); t.Locktime > now {
		return nil, fault.ValidationFailedf("transaction not final: threshold %d, clock %d", t.Locktime, now)
	}

	// 3. Resolve every spent output
	spent := make([]tx.Output, len(t.Inputs))
	for i, in := range t.Inputs {
		out, ok, err := e.Output(in.Outpoint)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fault.ValidationFailedf("input %d: no unspent output at %s:%d",
				i, in.Outpoint.TxID, in.Outpoint.Index)
		}
		spent[i] = out
	}

	// 4. Per-input unlock rules against the committed policies
	for i := range t.Inputs {
		if err := validateUnlock(t, i, spent[i]); err != nil {
			return nil, fault.ValidationFailedf("input %d: %v", i, err)
		}
	}

	// 5. Value conservation: inputs cover outputs, difference is the fee
	if err := validateValues(t, spent); err != nil {
		return nil, err
	}

	// 6. Token conservation per category
	if err := validateTokens(t, spent); err != nil {
		return nil, err
	}

	return spent, nil
}

// apply commits the state change in one batch: spent outputs and their index
// entries leave, created ones land, the height advances.
func (e *Engine) apply(t *tx.Transaction, spent []tx.Output) (tx.TxID, error) {
	id := t.ID()

	deletes := make([][]byte, 0, len(t.Inputs)*2)
	for i, in := range t.Inputs {
		deletes = append(deletes, outputKey(in.Outpoint))
		deletes = append(deletes, addrKey(spent[i].Lock.Address(), in.Outpoint))
	}

	sets := make([]storage.KeyValue, 0, len(t.Outputs)*2+1)
	for i, out := range t.Outputs {
		op := tx.Outpoint{TxID: id, Index: uint32(i)}
		sets = append(sets, storage.KeyValue{Key: outputKey(op), Value: tx.EncodeOutput(out)})
		sets = append(sets, storage.KeyValue{Key: addrKey(out.Lock.Address(), op), Value: []byte{}})
	}
	sets = append(sets, storage.KeyValue{Key: []byte(keyHeight), Value: encodeCounter(e.height + 1)})

	if err := e.store.ApplyBatch(deletes, sets); err != nil {
		return tx.TxID{}, fmt.Errorf("apply transaction:\n%w", err)
	}

	e.height++

	return id, nil
}

// validateStructure checks the transaction's shape before touching state.
func validateStructure(t *tx.Transaction) error {
	if len(t.Inputs) == 0 {
		return fault.ValidationFailedf("transaction has no inputs")
	}
	if len(t.Outputs) == 0 {
		return fault.ValidationFailedf("transaction has no outputs")
	}

	seen := make(map[tx.Outpoint]struct{}, len(t.Inputs))
	for i, in := range t.Inputs {
		if _, dup := seen[in.Outpoint]; dup {
			return fault.ValidationFailedf("input %d: duplicate outpoint %s:%d",
				i, in.Outpoint.TxID, in.Outpoint.Index)
		}
		seen[in.Outpoint] = struct{}{}

		if in.Unlock == nil {
			return fault.ValidationFailedf("input %d: no unlock descriptor", i)
		}
	}

	return nil
}

// validateValues checks overflow-free sums and that inputs cover outputs.
func validateValues(t *tx.Transaction, spent []tx.Output) error {
	var totalIn, totalOut uint64

	for i, out := range spent {
		next := totalIn + out.Value
		if next < totalIn {
			return fault.ValidationFailedf("input %d: value sum overflows", i)
		}
		totalIn = next
	}
	for i, out := range t.Outputs {
		next := totalOut + out.Value
		if next < totalOut {
			return fault.ValidationFailedf("output %d: value sum overflows", i)
		}
		totalOut = next
	}

	if totalOut > totalIn {
		return fault.ValidationFailedf("outputs %d exceed inputs %d", totalOut, totalIn)
	}

	return nil
}

// validateTokens checks per-category conservation: a transaction may carry
// or burn tokens but never mint them.
func validateTokens(t *tx.Transaction, spent []tx.Output) error {
	in := make(map[[32]byte]uint64)
	out := make(map[[32]byte]uint64)

	for i, o := range spent {
		if o.Token == nil {
			continue
		}
		next := in[o.Token.Category] + o.Token.Amount
		if next < in[o.Token.Category] {
			return fault.ValidationFailedf("input %d: token sum overflows", i)
		}
		in[o.Token.Category] = next
	}
	for i, o := range t.Outputs {
		if o.Token == nil {
			continue
		}
		if o.Token.Amount == 0 {
			return fault.ValidationFailedf("output %d: zero token amount", i)
		}
		next := out[o.Token.Category] + o.Token.Amount
		if next < out[o.Token.Category] {
			return fault.ValidationFailedf("output %d: token sum overflows", i)
		}
		out[o.Token.Category] = next
	}

	for category, produced := range out {
		if produced > in[category] {
			return fault.ValidationFailedf("token %s: outputs %d exceed inputs %d",
				tx.DisplayCategory(category), produced, in[category])
		}
	}

	return nil
}

// --- keys and counters ---

func outputKey(op tx.Outpoint) []byte {
	key := make([]byte, 0, len(prefixOutput)+36)
	key = append(key, prefixOutput...)
	key = append(key, tx.EncodeOutpoint(op)...)
	return key
}

func addrPrefix(addr tx.Address) []byte {
	prefix := make([]byte, 0, len(prefixAddr)+32)
	prefix = append(prefix, prefixAddr...)
	prefix = append(prefix, addr[:]...)
	return prefix
}

func addrKey(addr tx.Address, op tx.Outpoint) []byte {
	key := addrPrefix(addr)
	key = append(key, tx.EncodeOutpoint(op)...)
	return key
}

// fundOutpoint derives a unique synthetic outpoint for an issued output.
func fundOutpoint(seq uint64, out tx.Output) tx.Outpoint {
	h := blake3.New()
	h.Write([]byte("lattice-fund-v1"))

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	h.Write(tx.EncodeOutput(out))

	var op tx.Outpoint
	h.Sum(op.TxID[:0])

	return op
}

func (e *Engine) loadCounter(key string) (uint64, error) {
	raw, err := e.store.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("counter %s: got %d bytes, want 8", key, len(raw))
	}

	return binary.LittleEndian.Uint64(raw), nil
}

func encodeCounter(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// hasOutputs reports whether any unspent output exists, used before a
// snapshot restore.
func (e *Engine) hasOutputs() (bool, error) {
	found := false
	err := e.store.IteratePrefix([]byte(prefixOutput), func(_, _ []byte) error {
		found = true
		return errStopIteration
	})
	if err != nil && err != errStopIteration {
		return false, err
	}

	return found, nil
}

// errStopIteration aborts a prefix scan early; never surfaced to callers.
var errStopIteration = fmt.Errorf("stop iteration")

// CountOutputs scans the output keyspace, for status reporting.
func (e *Engine) CountOutputs() (int, error) {
	count := 0
	err := e.store.IteratePrefix([]byte(prefixOutput), func(_, _ []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}
