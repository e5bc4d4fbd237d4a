package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"strings"

	"lattice/attest"
)

// Config holds the attester configuration.
type Config struct {
	// ListenAddress is the QUIC listen address.
	ListenAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the attester's identity key; the BLS signing key is
	// derived from it, so the same file yields the same committee member
	// across restarts.
	PrivateKey ed25519.PrivateKey

	// Index is the attester's position in its committee.
	Index uint

	// Domains is a comma-separated domain allowlist. Empty signs any
	// domain.
	Domains string

	// MaxSkew is the accepted distance between a message timestamp and
	// local time, in seconds.
	MaxSkew uint64

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddress, "listen", ":9100", "QUIC listen address")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.UintVar(&cfg.Index, "index", 0, "Committee index")
	flag.StringVar(&cfg.Domains, "domains", "", "Comma-separated domain allowlist (empty = any)")
	flag.Uint64Var(&cfg.MaxSkew, "skew", 600, "Max timestamp skew in seconds")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	flag.Parse()

	return cfg
}

// parseDomains splits the allowlist flag into domain tags.
func parseDomains(s string) ([]attest.Domain, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	domains := make([]attest.Domain, 0, len(parts))

	for _, part := range parts {
		domain, err := attest.DomainFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("domain %q: %w", part, err)
		}

		domains = append(domains, domain)
	}

	return domains, nil
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
