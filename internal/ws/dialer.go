// Package ws adapts gorilla/websocket to the engine's connection contract.
package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"volley/internal/core"
)

const DefaultHandshakeTimeout = 10 * time.Second

// Options configure a Dialer.
type Options struct {
	HandshakeTimeout time.Duration
	Compression      bool
	TLS              *tls.Config
	Debug            *DebugLogger
}

// Dialer opens WebSocket connections.
type Dialer struct {
	dialer *websocket.Dialer
	debug  *DebugLogger
}

func NewDialer(opts Options) *Dialer {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  timeout,
			EnableCompression: opts.Compression,
			TLSClientConfig:   opts.TLS,
		},
		debug: opts.Debug,
	}
}

// Dial connects to target offering protocols. Failures are returned as
// *DialError.
func (d *Dialer) Dial(ctx context.Context, target string, protocols []string, header http.Header) (core.Conn, error) {
	sessionID := core.ActorIDFromContext(ctx)
	start := time.Now()

	if err := validateURL(target); err != nil {
		d.debug.LogError(sessionID, "connect", err.Error(), time.Since(start))
		return nil, &DialError{URL: target, Err: err}
	}

	d.debug.LogConnect(sessionID, target, protocols, header)

	dialer := *d.dialer
	dialer.Subprotocols = protocols

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		d.debug.LogError(sessionID, "connect", err.Error(), time.Since(start))
		dialErr := &DialError{URL: target, Err: err}
		if resp != nil {
			dialErr.Status = resp.StatusCode
			resp.Body.Close()
		}
		return nil, dialErr
	}

	d.debug.LogConnected(sessionID, conn.Subprotocol(), time.Since(start))
	return newConn(conn, sessionID, d.debug), nil
}

func validateURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}
