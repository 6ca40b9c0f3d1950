package middleware

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mini-jsonrpc/jsonrpc"
	"mini-jsonrpc/transport"
	"mini-jsonrpc/value"
)

// Retry re-sends a payload after transport failures with exponential backoff:
// baseDelay, 2*baseDelay, 4*baseDelay... A reply that arrived is never
// retried, whatever it contains, and neither is a decode failure.
func Retry(maxRetries int, baseDelay time.Duration, logger zerolog.Logger) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, payload value.Value) (value.Value, error) {
			reply, err := next(ctx, payload)
			for i := 0; i < maxRetries && err != nil; i++ {
				if !Retryable(err) || ctx.Err() != nil {
					return reply, err
				}
				delay := baseDelay * time.Duration(1<<i)
				logger.Info().Err(err).Str("method", describe(payload)).Int("attempt", i+1).Dur("backoff", delay).Msg("retrying")

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return value.Value{}, ctx.Err()
				case <-timer.C:
				}
				reply, err = next(ctx, payload)
			}
			return reply, err
		}
	}
}

// Retryable reports whether err is a transport failure worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := jsonrpc.KindOf(err); ok {
		return false
	}
	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, transport.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 502 || statusErr.StatusCode == 503 || statusErr.StatusCode == 504
	}
	return false
}
