// Package transport carries encoded JSON-RPC payloads to a peer and brings the
// replies back. It knows nothing about ids or results; matching replies to
// calls is the job of the jsonrpc package.
//
// Three transports are provided:
//
//	FrameTransport      one multiplexed TCP connection, frames from package protocol
//	HTTPTransport       one POST per payload
//	WebSocketTransport  one socket, replies routed back by the ids they carry
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/value"
)

var (
	// ErrClosed is returned for calls on, or pending on, a closed transport.
	ErrClosed = errors.New("transport: closed")
	// ErrNoResponse means the peer answered a request with an empty body.
	ErrNoResponse = errors.New("transport: empty response")
)

// Transport sends payloads built by jsonrpc elements.
type Transport interface {
	// RoundTrip sends payload and waits for the reply payload.
	RoundTrip(ctx context.Context, payload value.Value) (value.Value, error)
	// Notify sends payload without waiting for anything back.
	Notify(ctx context.Context, payload value.Value) error
	Close() error
}

// Kind selects a transport implementation.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "ws"
)

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tcp":
		return KindTCP, nil
	case "http", "https":
		return KindHTTP, nil
	case "ws", "wss", "websocket":
		return KindWebSocket, nil
	}
	return "", fmt.Errorf("transport: unknown kind %q", name)
}

// Options tune every transport. The zero value is usable.
type Options struct {
	Codec  codec.Codec     // defaults to JSON
	Logger *zerolog.Logger // defaults to a no-op logger

	// HeartbeatInterval applies to FrameTransport. Zero means 30s, negative disables.
	HeartbeatInterval time.Duration

	HTTPClient *http.Client // HTTP and WebSocket transports
	Header     http.Header  // extra request headers for HTTP and WebSocket transports
}

func (o Options) codec() codec.Codec {
	if o.Codec == nil {
		return &codec.JSONCodec{}
	}
	return o.Codec
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o Options) heartbeat() time.Duration {
	if o.HeartbeatInterval == 0 {
		return 30 * time.Second
	}
	return o.HeartbeatInterval
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient == nil {
		return http.DefaultClient
	}
	return o.HTTPClient
}

// Dial opens a transport of the given kind to addr.
func Dial(ctx context.Context, kind Kind, addr string, opts Options) (Transport, error) {
	switch kind {
	case KindTCP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return NewFrameTransport(conn, opts), nil
	case KindHTTP:
		return NewHTTPTransport(withScheme(addr, "http://"), opts), nil
	case KindWebSocket:
		return DialWebSocket(ctx, withScheme(addr, "ws://"), opts)
	}
	return nil, fmt.Errorf("transport: unknown kind %q", kind)
}

func withScheme(addr, scheme string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return scheme + addr
}
