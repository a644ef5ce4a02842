package middleware

import (
	"batchexecute/message"
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimit admits r batches per second with the given burst. A batch
// over the limit waits for a token until ctx is done.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
			return next(ctx, batch)
		}
	}
}
