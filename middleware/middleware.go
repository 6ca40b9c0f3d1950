// Package middleware wraps the client's round trip with cross-cutting
// behaviour. A middleware sees the encoded payload on its way out and the raw
// reply on its way back; it never decodes results.
//
//	Chain(Logging, Retry, Timeout)(invoke)
//
//	Logging ─→ Retry ─→ Timeout ─→ invoke ─→ transport
//	   ↑                                         │
//	   └──────────── reply / error ←─────────────┘
package middleware

import (
	"context"

	"mini-jsonrpc/value"
)

// Invoker sends one payload (a single call or a batch) and returns the reply.
type Invoker func(ctx context.Context, payload value.Value) (value.Value, error)

type Middleware func(next Invoker) Invoker

// Chain combines middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Invoker) Invoker {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// describe returns the method name of a single call, or "batch".
func describe(payload value.Value) string {
	if payload.Kind() == value.KindArray {
		return "batch"
	}
	if m, ok := payload.Field("method"); ok {
		if name, ok := m.AsString(); ok {
			return name
		}
	}
	return "unknown"
}
