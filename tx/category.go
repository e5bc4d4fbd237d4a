package tx

import (
	"encoding/hex"

	"lattice/fault"
)

// CategoryFromDisplay converts a token category from display hex to the
// canonical ledger byte order. Display tooling renders categories with the
// bytes reversed (the convention inherited from transaction-id rendering),
// so the two orders differ and confusing them makes a gate unspendable.
// This function is the one sanctioned crossing point: decode, then reverse.
func CategoryFromDisplay(display string) ([32]byte, error) {
	var cat [32]byte

	raw, err := hex.DecodeString(display)
	if err != nil {
		return cat, fault.InvalidParamf("category: display string is not hex: %v", err)
	}

	if len(raw) != len(cat) {
		return cat, fault.InvalidParamf("category: got %d bytes, want %d", len(raw), len(cat))
	}

	for i, b := range raw {
		cat[len(cat)-1-i] = b
	}

	return cat, nil
}

// DisplayCategory renders a canonical-order category in display hex, the
// inverse of CategoryFromDisplay.
func DisplayCategory(cat [32]byte) string {
	var reversed [32]byte
	for i, b := range cat {
		reversed[len(cat)-1-i] = b
	}

	return hex.EncodeToString(reversed[:])
}
