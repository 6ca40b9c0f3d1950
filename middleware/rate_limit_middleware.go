package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"mini-jsonrpc/value"
)

// ErrRateLimited is returned without sending when the token bucket is empty.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimit creates a token-bucket limiter shared by every round trip through it.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Invoker) Invoker {
		return func(ctx context.Context, payload value.Value) (value.Value, error) {
			if !limiter.Allow() {
				return value.Value{}, ErrRateLimited
			}
			return next(ctx, payload)
		}
	}
}
