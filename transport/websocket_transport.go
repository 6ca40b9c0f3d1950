package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/jsonrpc"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/value"
)

var (
	// ErrNoID is returned by RoundTrip for payloads that carry no request id.
	ErrNoID = errors.New("transport: payload has no request id")
	// ErrDuplicateID is returned when an id is already waiting for a reply on the socket.
	ErrDuplicateID = errors.New("transport: id already pending")
)

// WebSocketTransport shares one socket between concurrent round trips.
// WebSocket messages have no sequence number, so replies are routed by the
// JSON-RPC ids they carry; a batch waiter is registered under all of its ids.
type WebSocketTransport struct {
	conn     *websocket.Conn
	codec    codec.Codec
	msgType  websocket.MessageType
	logger   zerolog.Logger
	cancel   context.CancelFunc
	mu       sync.Mutex
	pending  map[jsonrpc.ID]*wsWaiter
	closeErr error
	done     chan struct{}
}

type wsWaiter struct {
	ids []jsonrpc.ID
	ch  chan wsResult
}

type wsResult struct {
	reply value.Value
	err   error
}

// DialWebSocket connects to url and starts the read loop.
func DialWebSocket(ctx context.Context, url string, opts Options) (*WebSocketTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: opts.Header,
	})
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn, opts), nil
}

// NewWebSocketTransport takes over an established connection.
func NewWebSocketTransport(conn *websocket.Conn, opts Options) *WebSocketTransport {
	conn.SetReadLimit(int64(protocol.MaxBodyLen))
	readCtx, cancel := context.WithCancel(context.Background())
	c := opts.codec()
	t := &WebSocketTransport{
		conn:    conn,
		codec:   c,
		msgType: websocket.MessageText,
		logger:  opts.logger().With().Str("transport", "ws").Logger(),
		cancel:  cancel,
		pending: make(map[jsonrpc.ID]*wsWaiter),
		done:    make(chan struct{}),
	}
	if c.Type() == codec.CodecTypeMsgpack {
		t.msgType = websocket.MessageBinary
	}
	go t.readLoop(readCtx)
	return t
}

func (t *WebSocketTransport) RoundTrip(ctx context.Context, payload value.Value) (value.Value, error) {
	ids := requestIDs(payload)
	if len(ids) == 0 {
		return value.Value{}, ErrNoID
	}
	data, err := t.codec.Encode(payload)
	if err != nil {
		return value.Value{}, fmt.Errorf("transport: encode: %w", err)
	}

	w := &wsWaiter{ids: ids, ch: make(chan wsResult, 1)}
	if err := t.register(w); err != nil {
		return value.Value{}, err
	}

	if err := t.conn.Write(ctx, t.msgType, data); err != nil {
		t.unregister(w)
		return value.Value{}, fmt.Errorf("transport: write: %w", err)
	}

	select {
	case res := <-w.ch:
		return res.reply, res.err
	case <-ctx.Done():
		t.unregister(w)
		return value.Value{}, ctx.Err()
	}
}

func (t *WebSocketTransport) Notify(ctx context.Context, payload value.Value) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	data, err := t.codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	if err := t.conn.Write(ctx, t.msgType, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) register(w *wsWaiter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr != nil {
		return t.closeErr
	}
	for _, id := range w.ids {
		if _, busy := t.pending[id]; busy {
			return fmt.Errorf("%w: %v", ErrDuplicateID, id)
		}
	}
	for _, id := range w.ids {
		t.pending[id] = w
	}
	return nil
}

// unregister removes w and reports whether it was still pending.
func (t *WebSocketTransport) unregister(w *wsWaiter) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(w)
}

func (t *WebSocketTransport) removeLocked(w *wsWaiter) bool {
	found := false
	for _, id := range w.ids {
		if t.pending[id] == w {
			delete(t.pending, id)
			found = true
		}
	}
	return found
}

func (t *WebSocketTransport) readLoop(ctx context.Context) {
	for {
		_, data, err := t.conn.Read(ctx)
		if err != nil {
			t.fail(err)
			return
		}
		reply, err := t.codec.Decode(data)
		if err != nil {
			t.logger.Warn().Err(err).Msg("dropping undecodable message")
			continue
		}
		t.route(reply)
	}
}

// route delivers reply to the waiter owning one of its ids. A reply without a
// usable id goes to the only waiter when exactly one is pending, so that a
// peer's parse error still reaches the caller that caused it.
func (t *WebSocketTransport) route(reply value.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var w *wsWaiter
	for _, id := range responseIDs(reply) {
		if w = t.pending[id]; w != nil {
			break
		}
	}
	if w == nil {
		w = t.soleWaiterLocked()
	}
	if w == nil {
		t.logger.Debug().Stringer("reply", reply).Msg("dropping reply with no waiting caller")
		return
	}
	t.removeLocked(w)
	w.ch <- wsResult{reply: reply}
}

func (t *WebSocketTransport) soleWaiterLocked() *wsWaiter {
	var only *wsWaiter
	for _, w := range t.pending {
		if only != nil && only != w {
			return nil
		}
		only = w
	}
	return only
}

func (t *WebSocketTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr != nil {
		return
	}
	t.closeErr = closedErr(err)
	close(t.done)
	if websocket.CloseStatus(err) < 0 && !errors.Is(err, context.Canceled) {
		t.logger.Warn().Err(err).Msg("connection failed")
	}
	for id, w := range t.pending {
		delete(t.pending, id)
		select {
		case w.ch <- wsResult{err: t.closeErr}:
		default:
		}
	}
}

// Close sends a normal closure and fails pending round trips with ErrClosed.
func (t *WebSocketTransport) Close() error {
	t.fail(ErrClosed)
	err := t.conn.Close(websocket.StatusNormalClosure, "")
	t.cancel()
	return err
}

func requestIDs(payload value.Value) []jsonrpc.ID {
	var ids []jsonrpc.ID
	collect := func(unit value.Value) {
		raw, ok := unit.Field("id")
		if !ok {
			return
		}
		if id := jsonrpc.IDFromValue(raw); !id.IsAbsent() {
			ids = append(ids, id)
		}
	}
	if items, ok := payload.AsArray(); ok {
		for _, item := range items {
			collect(item)
		}
	} else {
		collect(payload)
	}
	return ids
}

func responseIDs(reply value.Value) []jsonrpc.ID {
	return requestIDs(reply)
}
