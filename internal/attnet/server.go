package attnet

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"lattice/attest"
	"lattice/internal/logger"
)

const (
	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "lattice/1"
)

// Policy is what an attester is willing to sign. The checks run before any
// BLS work; a request failing one gets a refusal, never a signature.
type Policy struct {
	Domains []attest.Domain // Domains is the allowlist; empty allows any domain
	MaxSkew uint64          // MaxSkew bounds |timestamp - local clock|
}

// allows reports whether the domain passes the allowlist.
func (p Policy) allows(d attest.Domain) bool {
	if len(p.Domains) == 0 {
		return true
	}

	for _, allowed := range p.Domains {
		if allowed == d {
			return true
		}
	}

	return false
}

// withinSkew reports whether the proposed timestamp is close enough to the
// attester's own clock.
func (p Policy) withinSkew(timestamp, now uint64) bool {
	diff := now - timestamp
	if timestamp > now {
		diff = timestamp - now
	}

	return diff <= p.MaxSkew
}

// Server answers signing requests from quorum clients. Each request arrives
// on its own bidirectional stream and receives exactly one response frame.
type Server struct {
	addr     string              // addr is the QUIC listen address
	identity ed25519.PrivateKey  // identity authenticates the transport
	key      *attest.BLSKeyPair  // key produces partial signatures
	index    uint32              // index is this attester's committee position
	policy   Policy              // policy gates what gets signed
	now      func() uint64       // now is the clock source for skew checks
	tlsConf  *tls.Config         // tlsConf is the TLS configuration
	listener *quic.Listener      // listener is the QUIC listener
	ctx      context.Context     // ctx is the server's context
	cancel   context.CancelFunc  // cancel cancels the server's context
	wg       sync.WaitGroup      // wg waits for goroutines to finish
}

// NewServer creates an attester server. The identity key authenticates the
// QUIC transport; the BLS key signs approved messages.
func NewServer(addr string, identity ed25519.PrivateKey, key *attest.BLSKeyPair, index uint32, policy Policy) (*Server, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity key is required")
	}

	if key == nil {
		return nil, fmt.Errorf("BLS key is required")
	}

	cert, err := identityCertificate(identity)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // Identity is the ed25519 key, checked manually
		NextProtos:         []string{alpnProtocol},
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:     addr,
		identity: identity,
		key:      key,
		index:    index,
		policy:   policy,
		now:      func() uint64 { return uint64(time.Now().Unix()) },
		tlsConf:  tlsConf,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// WithClock replaces the skew-check clock source.
func (s *Server) WithClock(now func() uint64) *Server {
	s.now = now
	return s
}

// Addr returns the listener's address. Returns empty string if not started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Start starts listening and serving signing requests.
func (s *Server) Start() error {
	listener, err := quic.ListenAddr(s.addr, s.tlsConf, newQUICConfig())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("attester listening", "addr", listener.Addr().String(), "index", s.index)

	return nil
}

// Close stops the server and waits for in-flight requests.
func (s *Server) Close() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	return nil
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return // Listener closed
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn accepts request streams on one connection.
func (s *Server) handleConn(conn *quic.Conn) {
	log := logger.With("peer", conn.RemoteAddr().String())
	log.Debug("peer connected")

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			log.Debug("peer disconnected")
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleStream(stream)
		}()
	}
}

// handleStream serves one request/response exchange.
func (s *Server) handleStream(stream *quic.Stream) {
	defer stream.Close()

	data, err := readFrame(stream)
	if err != nil {
		return
	}

	writeFrame(stream, s.processRequest(data))
}

// processRequest applies the signing policy to one request and returns the
// encoded response: a partial signature or a refusal.
func (s *Server) processRequest(data []byte) []byte {
	msg, err := DecodeSignRequest(data)
	if err != nil {
		return EncodeRefusal(RefusalMessage)
	}

	if msg.Nonce == 0 {
		return EncodeRefusal(RefusalMessage)
	}

	if !s.policy.allows(msg.Domain) {
		logger.Debug("refused domain", "domain", msg.Domain.String())
		return EncodeRefusal(RefusalDomain)
	}

	if !s.policy.withinSkew(uint64(msg.Timestamp), s.now()) {
		logger.Debug("refused skew", "timestamp", msg.Timestamp, "clock", s.now())
		return EncodeRefusal(RefusalSkew)
	}

	sig := s.key.Sign(msg.Encode())

	return EncodePartial(&Partial{Index: s.index, Signature: sig})
}

// newQUICConfig returns the transport tuning shared by server and client.
func newQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}
