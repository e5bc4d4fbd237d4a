package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lattice/attest"
	"lattice/internal/attnet"
	"lattice/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	logger.Init(cfg.LogLevel)

	var err error
	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	key, err := attest.DeriveBLSFromED25519(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("derive bls key:\n%w", err)
	}

	domains, err := parseDomains(cfg.Domains)
	if err != nil {
		return fmt.Errorf("parse domains:\n%w", err)
	}

	srv, err := attnet.NewServer(
		cfg.ListenAddress,
		cfg.PrivateKey,
		key,
		uint32(cfg.Index),
		attnet.Policy{Domains: domains, MaxSkew: cfg.MaxSkew},
	)
	if err != nil {
		return fmt.Errorf("create attester:\n%w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start attester:\n%w", err)
	}

	printStartupInfo(cfg, key)

	return waitForShutdown(srv)
}

// printStartupInfo displays attester configuration at startup.
func printStartupInfo(cfg *Config, key *attest.BLSKeyPair) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)

	logger.Info("starting lattice attester",
		"pubkey", hex.EncodeToString(pubKey),
		"bls_pubkey", hex.EncodeToString(key.PublicKeyBytes()),
		"listen", cfg.ListenAddress,
		"index", cfg.Index,
		"domains", cfg.Domains,
		"skew", cfg.MaxSkew,
	)
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func waitForShutdown(srv *attnet.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return srv.Close()
}
