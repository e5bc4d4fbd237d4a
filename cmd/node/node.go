package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lattice/internal/api"
	"lattice/internal/engine"
	"lattice/internal/logger"
	"lattice/internal/storage"
)

// Node wires the store, the ledger engine, and the HTTP API together.
type Node struct {
	cfg    *Config
	store  *storage.Store
	engine *engine.Engine
	api    *api.Server
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initEngine(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	store, err := storage.Open(n.cfg.DataPath + "/db")
	if err != nil {
		return fmt.Errorf("open storage:\n%w", err)
	}

	n.store = store

	return nil
}

// initEngine builds the ledger engine with the configured clock and genesis
// allocations.
func (n *Node) initEngine() error {
	var opts []engine.Option

	if n.cfg.FixedClock != 0 {
		clock := n.cfg.FixedClock
		opts = append(opts, engine.WithNow(func() uint64 { return clock }))
	}

	if n.cfg.GenesisPath != "" {
		outputs, err := loadGenesis(n.cfg.GenesisPath)
		if err != nil {
			return fmt.Errorf("load genesis:\n%w", err)
		}

		opts = append(opts, engine.WithGenesis(outputs))
	}

	eng, err := engine.New(n.store, opts...)
	if err != nil {
		return fmt.Errorf("init engine:\n%w", err)
	}

	n.engine = eng

	return nil
}

// Run starts the HTTP API and blocks until shutdown signal.
func (n *Node) Run() error {
	var faucet api.Faucet
	if n.cfg.Faucet {
		faucet = n.engine
	}

	n.api = api.New(n.cfg.HTTPAddress, n.engine, n.engine, faucet, n.engine, n.engine)
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return n.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.store != nil {
		n.store.Close()
	}

	return nil
}
