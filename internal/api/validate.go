package api

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"lattice/fault"
	"lattice/tx"
)

// fundRequest is the POST /fund body. The lock travels as hex of its
// canonical [type][data] encoding; the token category uses display hex.
type fundRequest struct {
	Lock  string     `json:"lock"`
	Value uint64     `json:"value"`
	Token *tokenJSON `json:"token,omitempty"`
}

// parseFundRequest decodes and validates a faucet request. The returned
// lock and token are ready to hand to the ledger unchanged.
func parseFundRequest(r *http.Request) (tx.Lock, uint64, *tx.TokenData, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFundSize))
	if err != nil {
		return tx.Lock{}, 0, nil, fault.InvalidParamf("fund: failed to read body")
	}

	var req fundRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return tx.Lock{}, 0, nil, fault.InvalidParamf("fund: body is not valid JSON: %v", err)
	}

	lock, err := parseFundLock(req.Lock)
	if err != nil {
		return tx.Lock{}, 0, nil, err
	}

	token, err := parseFundToken(req.Token)
	if err != nil {
		return tx.Lock{}, 0, nil, err
	}

	return lock, req.Value, token, nil
}

// parseFundLock decodes the hex lock field into its type and data bytes.
func parseFundLock(s string) (tx.Lock, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return tx.Lock{}, fault.InvalidParamf("fund: lock is not hex: %v", err)
	}

	if len(raw) < 2 {
		return tx.Lock{}, fault.InvalidParamf("fund: lock too short: got %d bytes, want at least 2", len(raw))
	}

	return tx.Lock{Type: tx.LockType(raw[0]), Data: raw[1:]}, nil
}

// parseFundToken converts the optional token field, nil for none.
func parseFundToken(t *tokenJSON) (*tx.TokenData, error) {
	if t == nil {
		return nil, nil
	}

	category, err := tx.CategoryFromDisplay(t.Category)
	if err != nil {
		return nil, err
	}

	if t.Amount == 0 {
		return nil, fault.InvalidParamf("fund: token amount must be positive")
	}

	return &tx.TokenData{Category: category, Amount: t.Amount}, nil
}
