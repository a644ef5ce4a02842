package middleware

import (
	"batchexecute/message"
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "batchexecute/middleware"

// Telemetry records a span per batch plus the metrics
//
//	batchexecute.batches   counter, by service and outcome
//	batchexecute.calls     counter, by service
//	batchexecute.duration  histogram in seconds, by service
func Telemetry(mp metric.MeterProvider, tp trace.TracerProvider) (Middleware, error) {
	meter := mp.Meter(instrumentationName)
	tracer := tp.Tracer(instrumentationName)

	batches, err := meter.Int64Counter("batchexecute.batches", metric.WithDescription("Batches executed"))
	if err != nil {
		return nil, err
	}
	calls, err := meter.Int64Counter("batchexecute.calls", metric.WithDescription("RPC calls executed"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("batchexecute.duration",
		metric.WithDescription("Batch duration"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
			service := attribute.String("batchexecute.service", batch.Service)
			ctx, span := tracer.Start(ctx, "batchexecute "+batch.Service,
				trace.WithAttributes(service,
					attribute.StringSlice("batchexecute.rpcids", batch.RPCIDs())))
			defer span.End()

			start := time.Now()
			frames, err := next(ctx, batch)

			outcome := "ok"
			if err != nil {
				outcome = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.SetAttributes(attribute.Int("batchexecute.frames", len(frames)))

			set := metric.WithAttributes(service)
			batches.Add(ctx, 1, metric.WithAttributes(service, attribute.String("outcome", outcome)))
			calls.Add(ctx, int64(len(batch.Calls)), set)
			duration.Record(ctx, time.Since(start).Seconds(), set)
			return frames, err
		}
	}, nil
}
