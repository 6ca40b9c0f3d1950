package client

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/value"
)

// arithPeer is the remote end used by the tests. It knows three methods:
//
//	Arith.Add   [a, b] → a+b
//	Arith.Fail  → error -32000 "boom" with data
//	Arith.Log   notification, counted
type arithPeer struct {
	addr     string
	notified atomic.Int32
	conns    atomic.Int32
	listener net.Listener
}

func (p *arithPeer) answer(unit value.Value) (value.Value, bool) {
	method, _ := unit.Field("method")
	name, _ := method.AsString()
	id, hasID := unit.Field("id")
	if !hasID {
		if name == "Arith.Log" {
			p.notified.Add(1)
		}
		return value.Value{}, false
	}

	reply := func(key string, v value.Value) value.Value {
		return value.ObjectOf(
			value.M("jsonrpc", value.String("2.0")),
			value.M(key, v),
			value.M("id", id),
		)
	}
	failure := func(code int64, msg string, data *value.Value) value.Value {
		members := []value.Member{value.M("code", value.Int(code)), value.M("message", value.String(msg))}
		if data != nil {
			members = append(members, value.M("data", *data))
		}
		return reply("error", value.ObjectOf(members...))
	}

	switch name {
	case "Arith.Add":
		params, _ := unit.Field("params")
		a, _ := params.Index(0)
		b, _ := params.Index(1)
		x, ok1 := a.AsInt()
		y, ok2 := b.AsInt()
		if !ok1 || !ok2 {
			return failure(-32602, "Invalid params", nil), true
		}
		return reply("result", value.Int(x+y)), true
	case "Arith.Fail":
		data := value.String("details")
		return failure(-32000, "boom", &data), true
	}
	return failure(-32601, "Method not found", nil), true
}

func (p *arithPeer) handle(payload value.Value) (value.Value, bool) {
	items, isBatch := payload.AsArray()
	if !isBatch {
		return p.answer(payload)
	}
	var out []value.Value
	// Answer a batch back to front
	for i := len(items) - 1; i >= 0; i-- {
		if r, ok := p.answer(items[i]); ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return value.Value{}, false
	}
	return value.Array(out...), true
}

// startFramePeer serves the frame protocol on a random local port.
func startFramePeer(t testing.TB) *arithPeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	p := &arithPeer{addr: ln.Addr().String(), listener: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			p.conns.Add(1)
			go p.serve(conn)
		}
	}()
	return p
}

func (p *arithPeer) serve(conn net.Conn) {
	defer conn.Close()
	var mu sync.Mutex
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		if header.MsgType != protocol.MsgTypeRequest && header.MsgType != protocol.MsgTypeNotification {
			continue
		}
		c := codec.GetCodec(codec.CodecType(header.CodecType))
		payload, err := c.Decode(body)
		if err != nil {
			return
		}
		reply, ok := p.handle(payload)
		if !ok || header.MsgType == protocol.MsgTypeNotification {
			continue
		}
		out, err := c.Encode(reply)
		if err != nil {
			return
		}
		mu.Lock()
		err = protocol.Encode(conn, &protocol.Header{
			CodecType: header.CodecType,
			MsgType:   protocol.MsgTypeResponse,
			Seq:       header.Seq,
		}, out)
		mu.Unlock()
		if err != nil {
			return
		}
	}
}

// deadAddr returns a local address nothing listens on.
func deadAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
