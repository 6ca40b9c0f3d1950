package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mini-jsonrpc/value"
)

// Logging records method, duration and outcome of every round trip.
func Logging(logger zerolog.Logger) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, payload value.Value) (value.Value, error) {
			start := time.Now()
			reply, err := next(ctx, payload)

			event := logger.Debug()
			if err != nil {
				event = logger.Warn().Err(err)
			}
			event = event.Str("method", describe(payload)).Dur("duration", time.Since(start))
			if payload.Kind() == value.KindArray {
				event = event.Int("calls", payload.Len())
			} else if id, ok := payload.Field("id"); ok {
				event = event.Stringer("id", id)
			}
			event.Msg("round trip")
			return reply, err
		}
	}
}
