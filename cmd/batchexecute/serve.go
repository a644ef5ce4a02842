package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"batchexecute/config"
	"batchexecute/middleware"
	"batchexecute/registry"
	"batchexecute/server"
)

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	shutdownTelemetry, metrics, mp, tp, err := setupTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	svr := server.New(server.WithLogger(logger))
	if err := svr.Register("echo", func(ctx context.Context, args []any) ([]any, error) {
		return args, nil
	}); err != nil {
		return err
	}

	telemetry, err := middleware.Telemetry(mp, tp)
	if err != nil {
		return err
	}
	svr.Use(middleware.Logging(logger))
	svr.Use(telemetry)
	if cfg.Server.TimeoutMS > 0 {
		svr.Use(middleware.Timeout(time.Duration(cfg.Server.TimeoutMS) * time.Millisecond))
	}

	mux := http.NewServeMux()
	mux.Handle("/", svr)
	if metrics != nil {
		mux.Handle(cfg.Telemetry.MetricsPath, metrics)
	}

	addr := net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	if cfg.Server.AdvertiseHost != "" {
		reg, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer reg.Close()
		ep := registry.Endpoint{
			URL: fmt.Sprintf("http://%s/_/%s/data/batchexecute",
				net.JoinHostPort(cfg.Server.AdvertiseHost, strconv.Itoa(cfg.Server.Port)), cfg.Server.App),
		}
		if err := svr.Advertise(ctx, reg, cfg.Service, ep, int64(cfg.Registry.TTLSeconds)); err != nil {
			return err
		}
		logger.Info("advertised", slog.String("service", cfg.Service), slog.String("url", ep.URL))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(l) }()
	logger.Info("serving", slog.String("addr", l.Addr().String()), slog.String("app", cfg.Server.App))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Withdraw before closing the listener so clients stop picking us.
	werr := svr.Shutdown(sctx)
	if err := hs.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(werr, err)
	}
	logger.Info("shutdown complete")
	return werr
}
