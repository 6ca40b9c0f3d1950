package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/value"
)

// StatusError is returned when the HTTP peer answers outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: http status %d: %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// HTTPTransport posts every payload to one URL.
type HTTPTransport struct {
	url    string
	client *http.Client
	codec  codec.Codec
	header http.Header
	logger zerolog.Logger
}

func NewHTTPTransport(url string, opts Options) *HTTPTransport {
	return &HTTPTransport{
		url:    url,
		client: opts.httpClient(),
		codec:  opts.codec(),
		header: opts.Header.Clone(),
		logger: opts.logger().With().Str("transport", "http").Str("url", url).Logger(),
	}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, payload value.Value) (value.Value, error) {
	body, err := t.post(ctx, payload)
	if err != nil {
		return value.Value{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return value.Value{}, ErrNoResponse
	}
	reply, err := t.codec.Decode(body)
	if err != nil {
		return value.Value{}, fmt.Errorf("transport: decode: %w", err)
	}
	return reply, nil
}

// Notify posts payload and discards whatever the peer sends back.
func (t *HTTPTransport) Notify(ctx context.Context, payload value.Value) error {
	_, err := t.post(ctx, payload)
	return err
}

func (t *HTTPTransport) post(ctx context.Context, payload value.Value) ([]byte, error) {
	data, err := t.codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType(t.codec))
	req.Header.Set("Accept", contentType(t.codec))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(protocol.MaxBodyLen)+1))
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	if len(body) > int(protocol.MaxBodyLen) {
		return nil, fmt.Errorf("%w: over %d bytes", protocol.ErrBodyTooLarge, protocol.MaxBodyLen)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Debug().Int("status", resp.StatusCode).Msg("peer rejected payload")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// Close drops idle keep-alive connections held by the HTTP client.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func contentType(c codec.Codec) string {
	if c.Type() == codec.CodecTypeMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}
