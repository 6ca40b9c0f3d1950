package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/value"
)

// FrameTransport multiplexes many round trips over a single TCP connection.
//
// Each payload goes out in its own frame with a fresh sequence number, and a
// background goroutine (recvLoop) reads reply frames and hands each one to the
// caller waiting on that sequence number:
//
//	goroutine-1 ──RoundTrip(seq=1)──┐
//	goroutine-2 ──RoundTrip(seq=2)──┼──→ single TCP conn ──→ peer
//	goroutine-3 ──RoundTrip(seq=3)──┘
//
//	recvLoop:  ←── frame(seq=2) → pending[2] ──→ goroutine-2 wakes up
//
// The frame seq only pairs frames. Matching the JSON-RPC ids inside the reply
// is still up to the caller.
type FrameTransport struct {
	conn    net.Conn
	codec   codec.Codec
	logger  zerolog.Logger
	seq     uint32     // Protected by sending
	pending sync.Map   // map[uint32]chan frameResult
	sending sync.Mutex // Serializes frame writes; interleaved frames corrupt the stream

	closeOnce sync.Once
	done      chan struct{}
}

type frameResult struct {
	codecType byte
	body      []byte
	err       error
}

// NewFrameTransport wraps conn and starts two background goroutines:
//   - recvLoop: reads reply frames and dispatches them to pending callers
//   - heartbeatLoop: sends periodic heartbeat frames so idle peers keep the connection
func NewFrameTransport(conn net.Conn, opts Options) *FrameTransport {
	t := &FrameTransport{
		conn:   conn,
		codec:  opts.codec(),
		logger: opts.logger().With().Str("transport", "tcp").Str("remote", conn.RemoteAddr().String()).Logger(),
		done:   make(chan struct{}),
	}
	go t.recvLoop()
	if interval := opts.heartbeat(); interval > 0 {
		go t.heartbeatLoop(interval)
	}
	return t
}

// RoundTrip sends payload in a request frame and waits for the matching reply
// frame, the connection to fail, or ctx to end.
func (t *FrameTransport) RoundTrip(ctx context.Context, payload value.Value) (value.Value, error) {
	body, err := t.codec.Encode(payload)
	if err != nil {
		return value.Value{}, fmt.Errorf("transport: encode: %w", err)
	}

	// Buffered so recvLoop never blocks on a caller that gave up
	respChan := make(chan frameResult, 1)
	seq, err := t.send(protocol.MsgTypeRequest, body, respChan)
	if err != nil {
		return value.Value{}, err
	}

	select {
	case res := <-respChan:
		if res.err != nil {
			return value.Value{}, res.err
		}
		reply, err := codec.GetCodec(codec.CodecType(res.codecType)).Decode(res.body)
		if err != nil {
			return value.Value{}, fmt.Errorf("transport: decode: %w", err)
		}
		return reply, nil
	case <-ctx.Done():
		t.pending.Delete(seq)
		return value.Value{}, ctx.Err()
	}
}

// Notify sends payload in a notification frame; the peer sends nothing back.
func (t *FrameTransport) Notify(ctx context.Context, payload value.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := t.codec.Encode(payload)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	_, err = t.send(protocol.MsgTypeNotification, body, nil)
	return err
}

// send writes one frame. When respChan is set it is registered under the new
// seq BEFORE the write so recvLoop cannot miss a fast reply.
func (t *FrameTransport) send(msgType protocol.MsgType, body []byte, respChan chan frameResult) (uint32, error) {
	t.sending.Lock()
	defer t.sending.Unlock()

	select {
	case <-t.done:
		return 0, ErrClosed
	default:
	}

	t.seq++
	seq := t.seq

	if respChan != nil {
		t.pending.Store(seq, respChan)
	}

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   msgType,
		Seq:       seq,
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		go t.fail(err)
		return 0, fmt.Errorf("transport: write: %w", err)
	}
	return seq, nil
}

// recvLoop is the only reader of the connection; frame boundaries can only be
// parsed by reading the stream in order.
func (t *FrameTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(err)
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeResponse:
		default:
			t.logger.Debug().Stringer("type", header.MsgType).Uint32("seq", header.Seq).Msg("ignoring unexpected frame")
			continue
		}

		if channel, ok := t.pending.LoadAndDelete(header.Seq); ok {
			channel.(chan frameResult) <- frameResult{codecType: header.CodecType, body: body}
		} else {
			t.logger.Debug().Uint32("seq", header.Seq).Msg("dropping reply with no waiting caller")
		}
	}
}

// fail closes the transport once and releases every pending caller with err.
func (t *FrameTransport) fail(err error) {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
		if err != ErrClosed {
			t.logger.Warn().Err(err).Msg("connection failed")
		}

		// Take the write lock so no send can register between close(done) and the sweep
		t.sending.Lock()
		defer t.sending.Unlock()
		t.pending.Range(func(key, _ any) bool {
			// recvLoop may deliver concurrently; whoever deletes the entry owns the send
			if v, ok := t.pending.LoadAndDelete(key); ok {
				v.(chan frameResult) <- frameResult{err: closedErr(err)}
			}
			return true
		})
	})
}

func closedErr(err error) error {
	if err == ErrClosed {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}

// Close shuts the connection and fails every pending round trip with ErrClosed.
func (t *FrameTransport) Close() error {
	t.fail(ErrClosed)
	return nil
}

// Done is closed once the transport can no longer be used.
func (t *FrameTransport) Done() <-chan struct{} {
	return t.done
}

// heartbeatLoop sends heartbeat frames until the transport closes.
func (t *FrameTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(t.codec.Type()),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.fail(err)
			return
		}
	}
}
