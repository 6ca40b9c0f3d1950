package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mini-jsonrpc/value"
)

// ErrTimeout is returned when a round trip outlives the Timeout middleware.
var ErrTimeout = errors.New("middleware: request timed out")

func Timeout(timeout time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, payload value.Value) (value.Value, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				reply value.Value
				err   error
			}
			done := make(chan result, 1)
			go func() {
				reply, err := next(ctx, payload)
				done <- result{reply, err}
			}()

			select {
			case res := <-done:
				if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() != nil {
					return value.Value{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
				}
				return res.reply, res.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return value.Value{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
				}
				return value.Value{}, ctx.Err()
			}
		}
	}
}
