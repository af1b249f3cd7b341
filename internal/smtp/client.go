// Package smtp implements the client side of the SMTP protocol used for
// outreach delivery: EHLO, STARTTLS, AUTH LOGIN, envelope and DATA, with a
// typed error taxonomy per failed protocol phase. One connection delivers
// one message to one recipient; there is no pooling and no retry.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"
)

// DialFunc opens the raw connection. Tests substitute an in-memory dialer.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// implicitTLSPort is the SMTPS submission port where TLS wraps the whole
// connection instead of being negotiated via STARTTLS.
const implicitTLSPort = 465

// Client delivers messages to SMTP submission servers.
type Client struct {
	heloName       string
	connectTimeout time.Duration
	ioTimeout      time.Duration
	logger         *slog.Logger
	recorder       Recorder
	dial           DialFunc
}

// NewClient creates an SMTP delivery client. heloName is the identifier
// announced in EHLO. Zero timeouts fall back to 10s connect / 30s I/O.
func NewClient(heloName string, connectTimeout, ioTimeout time.Duration, logger *slog.Logger) *Client {
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}
	if ioTimeout == 0 {
		ioTimeout = 30 * time.Second
	}
	return &Client{
		heloName:       heloName,
		connectTimeout: connectTimeout,
		ioTimeout:      ioTimeout,
		logger:         logger,
		dial:           (&net.Dialer{}).DialContext,
	}
}

// SetRecorder sets the protocol step recorder.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// SetDialFunc replaces the connection dialer.
func (c *Client) SetDialFunc(d DialFunc) {
	c.dial = d
}

// Send delivers one message in a single attempt. Any failure is returned as
// a *DeliveryError; the connection is torn down on every exit path.
func (c *Client) Send(ctx context.Context, host string, port int, auth Auth, from, to string, data []byte) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", addr)
	if err != nil {
		kind := KindConnectionRejected
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			kind = KindTimeout
		}
		if dialCtx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		c.record(Event{Step: StepConnect, Detail: err.Error(), Warning: true})
		return &DeliveryError{
			Kind:    kind,
			Message: fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}
	c.record(Event{Step: StepConnect, Detail: addr})

	// Every read and write in the session is bounded by one deadline.
	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	implicit := port == implicitTLSPort
	var stream io.ReadWriteCloser = conn
	if implicit {
		tlsConn := tls.Client(conn, c.tlsConfig(host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return &DeliveryError{
				Kind:    KindTLSFailure,
				Message: fmt.Sprintf("TLS handshake with %s failed: %v", addr, err),
			}
		}
		stream = tlsConn
	}

	upgrade := func(raw io.ReadWriteCloser) (io.ReadWriteCloser, error) {
		nc, ok := raw.(net.Conn)
		if !ok {
			return nil, fmt.Errorf("stream does not support TLS upgrade")
		}
		tlsConn := tls.Client(nc, c.tlsConfig(host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return tlsConn, nil
	}

	sess := newSession(stream, c.heloName, c.recorder, upgrade, implicit)
	defer sess.Close()

	if err := sess.run(auth, from, to, data); err != nil {
		if c.logger != nil {
			c.logger.Warn("delivery failed", "server", addr, "to", to, "kind", KindOf(err), "error", err)
		}
		return err
	}

	if c.logger != nil {
		c.logger.Info("message delivered", "server", addr, "from", from, "to", to)
	}
	return nil
}

func (c *Client) tlsConfig(host string) *tls.Config {
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
}

func (c *Client) record(ev Event) {
	if c.recorder != nil {
		c.recorder.Record(ev)
	}
}
