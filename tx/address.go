package tx

import (
	"encoding/hex"
	"strings"

	"lattice/fault"
)

const (
	// addressPrefix marks a plain address string.
	addressPrefix = "lx1"

	// tokenAddressPrefix marks the token-aware form of the same address.
	// Wallets that do not understand token outputs refuse the lxt1 form, so
	// token-bearing destinations are never mis-paid by legacy senders. The
	// underlying hash is identical.
	tokenAddressPrefix = "lxt1"
)

// Address is the 32-byte hash of a canonical lock encoding. Outputs are
// indexed by it; covenants commit to destinations through it.
type Address [32]byte

// String renders the plain address form: lx1 + lowercase hex.
func (a Address) String() string {
	return addressPrefix + hex.EncodeToString(a[:])
}

// TokenString renders the token-aware address form: lxt1 + lowercase hex.
func (a Address) TokenString() string {
	return tokenAddressPrefix + hex.EncodeToString(a[:])
}

// ParseAddress accepts either address form and returns the hash.
func ParseAddress(s string) (Address, error) {
	var a Address

	body := s
	switch {
	case strings.HasPrefix(s, tokenAddressPrefix):
		body = s[len(tokenAddressPrefix):]
	case strings.HasPrefix(s, addressPrefix):
		body = s[len(addressPrefix):]
	default:
		return a, fault.InvalidParamf("address: got %q, want %s or %s prefix", s, addressPrefix, tokenAddressPrefix)
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return a, fault.InvalidParamf("address: body is not hex: %v", err)
	}

	if len(raw) != len(a) {
		return a, fault.InvalidParamf("address: got %d hash bytes, want %d", len(raw), len(a))
	}

	copy(a[:], raw)

	return a, nil
}
