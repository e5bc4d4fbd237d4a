package attnet

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// defaultRequestTimeout is the default timeout for Request calls.
	defaultRequestTimeout = 30 * time.Second
)

// Conn is a client connection to one attester.
type Conn struct {
	conn   *quic.Conn        // conn is the underlying QUIC connection
	remote ed25519.PublicKey // remote is the attester's transport identity
}

// Dial connects to an attester. The identity key authenticates this side of
// the transport; the attester's own identity is available via RemoteKey.
func Dial(ctx context.Context, addr string, identity ed25519.PrivateKey) (*Conn, error) {
	cert, err := identityCertificate(identity)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // Identity is the ed25519 key, checked manually
		NextProtos:         []string{alpnProtocol},
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, newQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	remote, err := remoteIdentity(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "no identity")
		return nil, fmt.Errorf("extract public key: %w", err)
	}

	return &Conn{conn: conn, remote: remote}, nil
}

// RemoteKey returns the attester's transport public key.
func (c *Conn) RemoteKey() ed25519.PublicKey {
	return c.remote
}

// Request sends data and waits for the response on a fresh bidirectional
// stream. Uses the provided context for timeout/cancellation.
func (c *Conn) Request(ctx context.Context, data []byte) ([]byte, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, data); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	response, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.CloseWithError(0, "closed")
}
