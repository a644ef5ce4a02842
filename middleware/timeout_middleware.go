package middleware

import (
	"batchexecute/message"
	"context"
	"errors"
	"time"
)

var ErrTimeout = errors.New("batch timed out")

// Timeout bounds a batch to d. The handler keeps running with a cancelled
// context after the deadline; its result is discarded.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				frames []message.Frame
				err    error
			}
			done := make(chan result, 1)
			go func() {
				frames, err := next(ctx, batch)
				done <- result{frames, err}
			}()

			select {
			case r := <-done:
				return r.frames, r.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
