// Command batchexecute sends batches to batchexecute endpoints and serves
// a local endpoint for development.
//
//	batchexecute [-config file] [-env file] call [-service name] rpcid [args] [rpcid [args] ...]
//	batchexecute [-config file] [-env file] serve
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"batchexecute/config"
	"batchexecute/loadbalance"
	"batchexecute/registry"

	"github.com/joho/godotenv"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		envPath     string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&envPath, "env", ".env", "Path to a .env file loaded before the configuration")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", envPath, err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "call":
		err = runCall(ctx, cfg, logger, args)
	case "serve":
		err = runServe(ctx, cfg, logger, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] call|serve [args]\n", os.Args[0])
	flag.PrintDefaults()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openRegistry builds the configured registry. Endpoints listed in the
// configuration seed a static registry; with etcd they are expected to be
// advertised by their servers.
func openRegistry(cfg config.Config) (registry.Registry, error) {
	switch cfg.Registry.Mode {
	case "etcd":
		return registry.NewEtcd(cfg.Registry.EtcdEndpoints)
	default:
		return registry.NewStatic(cfg.Service, cfg.RegistryEndpoints()...), nil
	}
}

func openBalancer(cfg config.Config) (loadbalance.Balancer, error) {
	return loadbalance.New(cfg.Client.Balancer)
}
