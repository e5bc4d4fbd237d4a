package client

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lattice/tx"
)

// Client talks to a node's HTTP API. It implements the ledger queries the
// covenant builders need and the submitter the composer needs, so policies
// can be built and spent against a remote node exactly as against a local
// engine.
type Client struct {
	nodeAddr string // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
}

// New creates a client for the node at the given address.
func New(nodeAddr string) *Client {
	return &Client{nodeAddr: nodeAddr}
}

// Status is the node's ledger counters.
type Status struct {
	Height  uint64 // Height is the number of applied transactions
	Clock   uint64 // Clock is the node's current ledger time
	Outputs int    // Outputs is the unspent output count
}

// wireOutput is one spendable output as the node renders it.
type wireOutput struct {
	TxID  string     `json:"txid"`
	Index uint32     `json:"index"`
	Value uint64     `json:"value"`
	Lock  string     `json:"lock"`
	Token *wireToken `json:"token"`
}

// wireToken is the token portion of an output.
type wireToken struct {
	Category string `json:"category"`
	Amount   uint64 `json:"amount"`
}

// SpendableOutputs lists the unspent outputs held at an address.
func (c *Client) SpendableOutputs(addr tx.Address) ([]tx.Spendable, error) {
	var resp struct {
		Outputs []wireOutput `json:"outputs"`
	}

	if err := httpGet("http://"+c.nodeAddr+"/outputs/"+addr.String(), &resp); err != nil {
		return nil, fmt.Errorf("get outputs:\n%w", err)
	}

	spendables := make([]tx.Spendable, 0, len(resp.Outputs))

	for _, out := range resp.Outputs {
		sp, err := parseOutput(out)
		if err != nil {
			return nil, fmt.Errorf("parse output:\n%w", err)
		}

		spendables = append(spendables, sp)
	}

	return spendables, nil
}

// Balance sums the unspent value held at an address.
func (c *Client) Balance(addr tx.Address) (uint64, error) {
	var resp struct {
		Confirmed uint64 `json:"confirmed"`
	}

	if err := httpGet("http://"+c.nodeAddr+"/balance/"+addr.String(), &resp); err != nil {
		return 0, fmt.Errorf("get balance:\n%w", err)
	}

	return resp.Confirmed, nil
}

// Submit sends a transaction to the node. Rejections come back with their
// original kind and bare reason, so a composer submitting through this
// client wraps exactly what a local engine would have produced.
func (c *Client) Submit(t *tx.Transaction) (tx.TxID, error) {
	resp, err := http.Post(
		"http://"+c.nodeAddr+"/tx",
		"application/octet-stream",
		bytes.NewReader(tx.EncodeTransaction(t)),
	)
	if err != nil {
		return tx.TxID{}, fmt.Errorf("post tx:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		return tx.TxID{}, decodeFault(resp)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return tx.TxID{}, fmt.Errorf("decode response:\n%w", err)
	}

	return parseTxID(body.ID)
}

// Fund asks the node's development faucet to mint an output.
func (c *Client) Fund(lock tx.Lock, value uint64, token *tx.TokenData) (tx.Outpoint, error) {
	body := map[string]any{
		"lock":  hex.EncodeToString(lock.Encode()),
		"value": value,
	}

	if token != nil {
		body["token"] = map[string]any{
			"category": tx.DisplayCategory(token.Category),
			"amount":   token.Amount,
		}
	}

	var resp struct {
		TxID  string `json:"txid"`
		Index uint32 `json:"index"`
	}
	if err := httpPostJSON("http://"+c.nodeAddr+"/fund", body, &resp); err != nil {
		return tx.Outpoint{}, fmt.Errorf("fund:\n%w", err)
	}

	txid, err := parseTxID(resp.TxID)
	if err != nil {
		return tx.Outpoint{}, err
	}

	return tx.Outpoint{TxID: txid, Index: resp.Index}, nil
}

// Status fetches the node's ledger counters.
func (c *Client) Status() (Status, error) {
	var resp struct {
		Height  uint64 `json:"height"`
		Clock   uint64 `json:"clock"`
		Outputs int    `json:"outputs"`
	}

	if err := httpGet("http://"+c.nodeAddr+"/status", &resp); err != nil {
		return Status{}, fmt.Errorf("get status:\n%w", err)
	}

	return Status{Height: resp.Height, Clock: resp.Clock, Outputs: resp.Outputs}, nil
}

// Snapshot downloads the node's compressed ledger snapshot.
func (c *Client) Snapshot() ([]byte, error) {
	resp, err := http.Get("http://" + c.nodeAddr + "/snapshot")
	if err != nil {
		return nil, fmt.Errorf("get snapshot:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get snapshot: status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// parseOutput rebuilds a tx.Spendable from its wire form.
func parseOutput(w wireOutput) (tx.Spendable, error) {
	txid, err := parseTxID(w.TxID)
	if err != nil {
		return tx.Spendable{}, err
	}

	lockBytes, err := hex.DecodeString(w.Lock)
	if err != nil || len(lockBytes) < 2 {
		return tx.Spendable{}, fmt.Errorf("invalid lock: %q", w.Lock)
	}

	sp := tx.Spendable{
		Outpoint: tx.Outpoint{TxID: txid, Index: w.Index},
		Output: tx.Output{
			Value: w.Value,
			Lock:  tx.Lock{Type: tx.LockType(lockBytes[0]), Data: lockBytes[1:]},
		},
	}

	if w.Token != nil {
		category, err := tx.CategoryFromDisplay(w.Token.Category)
		if err != nil {
			return tx.Spendable{}, err
		}

		sp.Output.Token = &tx.TokenData{Category: category, Amount: w.Token.Amount}
	}

	return sp, nil
}

// parseTxID decodes a 64-char hex transaction id.
func parseTxID(s string) (tx.TxID, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return tx.TxID{}, fmt.Errorf("invalid txid: %q", s)
	}

	var id tx.TxID
	copy(id[:], b)

	return id, nil
}
