package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"batchexecute/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
)

func setupTelemetry(cfg config.Config, logger *slog.Logger) (func(context.Context) error, http.Handler, metric.MeterProvider, trace.TracerProvider, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("batchexecute"),
			attribute.String("batchexecute.app", cfg.Server.App),
		),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tp, err := initTracer(cfg, res, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	otel.SetTracerProvider(tp)

	mp, handler := initMetrics(res, logger)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return shutdown, handler, mp, tp, nil
}

// initTracer exports spans to stdout when telemetry.trace_stdout is set;
// otherwise spans are sampled but not exported.
func initTracer(cfg config.Config, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	if !cfg.Telemetry.TraceStdout {
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	logger.Info("telemetry initialized", slog.String("exporter", "stdout"))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func initMetrics(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.Handler()
}
