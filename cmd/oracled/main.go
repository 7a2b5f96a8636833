// Command oracled serves a read-only view of an oracle node: it opens the
// node state, serves the gRPC query API and exposes Prometheus metrics and a
// heartbeat over HTTP. The state is snapshotted periodically and on shutdown.
//
// oracled itself never mutates state, so the RabbitMQ forwarder and the IPFS
// archiver it starts only see events once a program embedding pkg/sdk drives
// the registry and coordinator against the same Core. Such programs call
// Core.Forward themselves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dria-oracle/llm-oracle-go/internal/logger"
	"github.com/dria-oracle/llm-oracle-go/pkg/config"
	"github.com/dria-oracle/llm-oracle-go/pkg/metrics"
	"github.com/dria-oracle/llm-oracle-go/pkg/sdk"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file (environment only when empty)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("oracled stopped with error", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("oracled stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	core, err := sdk.NewSDK(ctx, cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	query, err := core.QueryServer()
	if err != nil {
		return fmt.Errorf("query server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return query.Serve(ctx, cfg.GRPCAddr) })
	g.Go(func() error { return serveHTTP(ctx, cfg, core) })
	g.Go(func() error { return snapshotLoop(ctx, cfg.Timeouts.Snapshot, core) })

	g.Go(func() error { return core.Forward(ctx) })

	zap.L().Info("oracled started",
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("http", cfg.MetricsAddr),
		zap.String("token", cfg.TokenBackend),
		zap.Stringer("custody", core.Custody()))

	err = g.Wait()
	if saveErr := core.Save(); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return err
}

// serveHTTP exposes /metrics and /heartbeat until ctx is cancelled.
func serveHTTP(ctx context.Context, cfg *config.Config, core *sdk.Core) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/heartbeat", core.HeartbeatHandler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("http shutdown failed", zap.Error(err))
		}
		return ctx.Err()
	}
}

// snapshotLoop saves the state every interval until ctx is cancelled.
func snapshotLoop(ctx context.Context, interval time.Duration, core *sdk.Core) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = core.Save()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
