package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"lattice/tx"
)

// genesisEntry is one funded output in the genesis file. The shapes match
// the faucet endpoint: hex lock bytes, display-form token category.
type genesisEntry struct {
	Lock  string `json:"lock"`
	Value uint64 `json:"value"`
	Token *struct {
		Category string `json:"category"`
		Amount   uint64 `json:"amount"`
	} `json:"token"`
}

// loadGenesis reads the genesis allocation file into fundable outputs.
func loadGenesis(path string) ([]tx.Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file:\n%w", err)
	}

	var entries []genesisEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse genesis file:\n%w", err)
	}

	outputs := make([]tx.Output, 0, len(entries))

	for i, entry := range entries {
		out, err := parseGenesisEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("genesis entry %d: %w", i, err)
		}

		outputs = append(outputs, out)
	}

	return outputs, nil
}

// parseGenesisEntry converts one file entry into an output.
func parseGenesisEntry(entry genesisEntry) (tx.Output, error) {
	raw, err := hex.DecodeString(entry.Lock)
	if err != nil {
		return tx.Output{}, fmt.Errorf("lock is not hex: %v", err)
	}

	if len(raw) < 2 {
		return tx.Output{}, fmt.Errorf("lock too short: got %d bytes, want at least 2", len(raw))
	}

	if entry.Value == 0 {
		return tx.Output{}, fmt.Errorf("value is zero")
	}

	out := tx.Output{
		Value: entry.Value,
		Lock:  tx.Lock{Type: tx.LockType(raw[0]), Data: raw[1:]},
	}

	if entry.Token != nil {
		category, err := tx.CategoryFromDisplay(entry.Token.Category)
		if err != nil {
			return tx.Output{}, fmt.Errorf("token category: %v", err)
		}

		if entry.Token.Amount == 0 {
			return tx.Output{}, fmt.Errorf("token amount is zero")
		}

		out.Token = &tx.TokenData{Category: category, Amount: entry.Token.Amount}
	}

	return out, nil
}
