package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"lattice/fault"
	"lattice/internal/logger"
	"lattice/tx"
)

const (
	// maxTxSize is the maximum transaction size in bytes.
	maxTxSize = 1 << 20 // 1 MB

	// maxFundSize is the maximum faucet request size in bytes.
	maxFundSize = 4 << 10
)

// TxSubmitter accepts transactions for validation and ledger apply.
type TxSubmitter interface {
	Submit(t *tx.Transaction) (tx.TxID, error)
}

// OutputReader serves the read endpoints over the unspent set.
type OutputReader interface {
	SpendableOutputs(addr tx.Address) ([]tx.Spendable, error)
	Balance(addr tx.Address) (uint64, error)
}

// Faucet creates unbacked outputs for development setups.
type Faucet interface {
	Fund(lock tx.Lock, value uint64, token *tx.TokenData) (tx.Outpoint, error)
}

// Snapshotter serializes the full ledger state.
type Snapshotter interface {
	CreateSnapshot() ([]byte, error)
}

// StatusProvider exposes ledger counters for monitoring.
type StatusProvider interface {
	Height() uint64
	Now() uint64
	CountOutputs() (int, error)
}

// Server is the HTTP API server.
type Server struct {
	addr      string         // addr is the HTTP listen address
	submitter TxSubmitter    // submitter validates and applies transactions
	outputs   OutputReader   // outputs serves spendable-output queries
	faucet    Faucet         // faucet mints development outputs, nil to disable
	snapshots Snapshotter    // snapshots serializes ledger state
	status    StatusProvider // status provides ledger counters for monitoring
	server    *http.Server   // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, submitter TxSubmitter, outputs OutputReader, faucet Faucet, snapshots Snapshotter, status StatusProvider) *Server {
	return &Server{
		addr:      addr,
		submitter: submitter,
		outputs:   outputs,
		faucet:    faucet,
		snapshots: snapshots,
		status:    status,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx", s.handleSubmitTx)
	mux.HandleFunc("GET /outputs/{address}", s.handleOutputs)
	mux.HandleFunc("GET /balance/{address}", s.handleBalance)
	mux.HandleFunc("POST /fund", s.handleFund)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleSubmitTx handles POST /tx requests. The body is the canonical
// transaction encoding; acceptance means the ledger applied it.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty transaction")
		return
	}

	txn, err := tx.DecodeTransaction(body)
	if err != nil {
		writeFault(w, err)
		return
	}

	id, err := s.submitter.Submit(txn)
	if err != nil {
		writeFault(w, err)
		return
	}

	logger.Debug("tx accepted", "id", hex.EncodeToString(id[:8]))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id": id.String(),
	})
}

// handleOutputs handles GET /outputs/{address} requests.
func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	addr, err := tx.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeFault(w, err)
		return
	}

	spendables, err := s.outputs.SpendableOutputs(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read outputs")
		return
	}

	resp := outputsResponse{
		Address: addr.String(),
		Outputs: make([]outputJSON, 0, len(spendables)),
	}
	for _, sp := range spendables {
		resp.Outputs = append(resp.Outputs, renderSpendable(sp))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBalance handles GET /balance/{address} requests.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := tx.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeFault(w, err)
		return
	}

	confirmed, err := s.outputs.Balance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":   addr.String(),
		"confirmed": confirmed,
	})
}

// handleFund handles POST /fund requests, the development faucet.
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	if s.faucet == nil {
		writeError(w, http.StatusServiceUnavailable, "faucet disabled")
		return
	}

	lock, value, token, err := parseFundRequest(r)
	if err != nil {
		writeFault(w, err)
		return
	}

	op, err := s.faucet.Fund(lock, value, token)
	if err != nil {
		writeFault(w, err)
		return
	}

	logger.Debug("faucet funded", "txid", hex.EncodeToString(op.TxID[:8]), "value", value)

	writeJSON(w, http.StatusOK, map[string]any{
		"txid":  op.TxID.String(),
		"index": op.Index,
	})
}

// handleSnapshot handles GET /snapshot requests. The body is the compressed
// snapshot container, suitable for bootstrapping an empty node.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.snapshots.CreateSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create snapshot")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	count, err := s.status.CountOutputs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count outputs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"height":  s.status.Height(),
		"clock":   s.status.Now(),
		"outputs": count,
	})
}

// outputsResponse is the GET /outputs body.
type outputsResponse struct {
	Address string       `json:"address"`
	Outputs []outputJSON `json:"outputs"`
}

// outputJSON is one spendable output. Lock bytes travel as hex so a client
// can rebuild the exact tx.Output; the token category uses display hex.
type outputJSON struct {
	TxID  string     `json:"txid"`
	Index uint32     `json:"index"`
	Value uint64     `json:"value"`
	Lock  string     `json:"lock"`
	Token *tokenJSON `json:"token,omitempty"`
}

// tokenJSON is the token portion of an output.
type tokenJSON struct {
	Category string `json:"category"`
	Amount   uint64 `json:"amount"`
}

// renderSpendable converts one ledger entry to its JSON form.
func renderSpendable(sp tx.Spendable) outputJSON {
	out := outputJSON{
		TxID:  sp.Outpoint.TxID.String(),
		Index: sp.Outpoint.Index,
		Value: sp.Output.Value,
		Lock:  hex.EncodeToString(sp.Output.Lock.Encode()),
	}

	if sp.Output.Token != nil {
		out.Token = &tokenJSON{
			Category: tx.DisplayCategory(sp.Output.Token.Category),
			Amount:   sp.Output.Token.Amount,
		}
	}

	return out
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeFault maps a classified error to its HTTP status and writes the
// error body. The bare reason and kind travel separately so clients can
// rebuild the original error across the wire.
func writeFault(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch fe.Kind {
	case fault.InvalidParam:
		status = http.StatusBadRequest
	case fault.ValidationFailed:
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, map[string]string{
		"error": fe.Msg,
		"kind":  string(fe.Kind),
	})
}
