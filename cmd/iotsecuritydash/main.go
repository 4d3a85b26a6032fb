// Package main implements the entry point for the IoT security dashboard
// backend. It ingests a live telemetry stream over WebSocket, keeps a
// bounded window of recent readings plus an anomaly ledger, and serves
// read-only snapshots to renderers over HTTP.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/kaipokrandt/iotsecuritydash/api"
	"github.com/kaipokrandt/iotsecuritydash/config"
	"github.com/kaipokrandt/iotsecuritydash/health"
	"github.com/kaipokrandt/iotsecuritydash/logging"
	"github.com/kaipokrandt/iotsecuritydash/metric"
	"github.com/kaipokrandt/iotsecuritydash/pkg/buffer"
	"github.com/kaipokrandt/iotsecuritydash/poller"
	"github.com/kaipokrandt/iotsecuritydash/store"
	"github.com/kaipokrandt/iotsecuritydash/stream"
	"github.com/kaipokrandt/iotsecuritydash/telemetry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "iotsecuritydash"
)

func main() {
	// Panic recovery with stack trace
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, watcher, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "endpoint", cfg.Endpoint)
		return nil
	}

	slog.Info("Starting dashboard backend",
		"version", Version,
		"build_time", BuildTime,
		"endpoint", cfg.Endpoint,
		"window_capacity", cfg.Window.Capacity)

	// NATS is optional: when configured, component logs fan out for
	// remote tailing
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
		}
		defer nc.Close()
	}

	registry := metric.NewRegistry()
	monitor := health.NewMonitor()

	window, err := store.NewEventWindow(cfg.Window.Capacity,
		buffer.WithMetrics[telemetry.ReadingEvent](registry, "window"))
	if err != nil {
		return err
	}
	ledger := store.NewAnomalyLedger(cfg.Ledger.Capacity)

	manager, err := stream.NewManager(stream.Config{
		URL:               cfg.WSURL(),
		Token:             cfg.Token,
		BackoffFloor:      cfg.Backoff.Floor.Std(),
		BackoffCeiling:    cfg.Backoff.Ceiling.Std(),
		BackoffMultiplier: cfg.Backoff.Multiplier,
	}, window, ledger,
		stream.WithLogger(logging.NewLogger("stream", nc, logger)),
		stream.WithMetrics(registry),
		stream.WithHealthMonitor(monitor),
	)
	if err != nil {
		return err
	}

	var snapshotPoller *poller.Poller
	if cfg.Poll.Enabled {
		snapshotPoller, err = poller.New(poller.Config{
			BaseURL:  cfg.Endpoint,
			Token:    cfg.Token,
			Interval: cfg.Poll.Interval.Std(),
			Limit:    cfg.Poll.Limit,
		},
			poller.WithLogger(logging.NewLogger("poller", nc, logger)),
			poller.WithHealthMonitor(monitor),
		)
		if err != nil {
			return err
		}
	}

	serverOpts := []api.Option{
		api.WithHealthMonitor(monitor),
		api.WithMetrics(registry),
		api.WithLogger(logging.NewLogger("api", nc, logger)),
	}
	if snapshotPoller != nil {
		serverOpts = append(serverOpts, api.WithPoller(snapshotPoller))
	}
	server := api.NewServer(cfg.API.Port, manager, window, ledger, serverOpts...)

	if watcher != nil {
		watcher.OnChange(func(next config.Config) {
			slog.SetDefault(setupLogger(next.Log.Level, next.Log.Format))
			slog.Info("Configuration reloaded", "log_level", next.Log.Level)
		})
		stopWatch, err := watcher.Watch()
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	return runComponents(manager, snapshotPoller, server, cliCfg.ShutdownTimeout)
}

// loadConfiguration loads the config, preferring CLI flags over the file's
// log settings. A config path enables hot reload through a Watcher.
func loadConfiguration(cliCfg *CLIConfig) (config.Config, *config.Watcher, error) {
	var cfg config.Config
	var watcher *config.Watcher
	var err error

	if cliCfg.ConfigPath != "" {
		watcher, err = config.NewWatcher(cliCfg.ConfigPath)
		if err != nil {
			return config.Config{}, nil, err
		}
		cfg = watcher.Config()
	} else {
		cfg, err = config.Load("")
		if err != nil {
			return config.Config{}, nil, err
		}
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	return cfg, watcher, nil
}

// runComponents starts everything and blocks until a shutdown signal.
func runComponents(manager *stream.Manager, snapshotPoller *poller.Poller, server *api.Server, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if snapshotPoller != nil {
		g.Go(func() error {
			if err := snapshotPoller.Run(gctx); err != nil && !stderrors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	<-gctx.Done()
	slog.Info("Shutting down", "timeout", shutdownTimeout)

	if err := manager.Stop(shutdownTimeout); err != nil {
		slog.Error("Stream shutdown incomplete", "error", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("Shutdown complete")
	return nil
}
