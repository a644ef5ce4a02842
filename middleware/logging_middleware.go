package middleware

import (
	"batchexecute/message"
	"context"
	"log/slog"
	"strings"
	"time"
)

// Logging logs every batch with its rpc ids, duration and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "middleware"))

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
			start := time.Now()
			frames, err := next(ctx, batch)
			attrs := []any{
				slog.String("service", batch.Service),
				slog.String("rpcids", strings.Join(batch.RPCIDs(), ",")),
				slog.Int("frames", len(frames)),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.WarnContext(ctx, "batch failed", append(attrs, slog.String("error", err.Error()))...)
				return frames, err
			}
			logger.DebugContext(ctx, "batch executed", attrs...)
			return frames, nil
		}
	}
}
