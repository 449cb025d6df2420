// Command autobridge runs the automation bridge: a WebSocket RPC server
// that exposes a simulated application shell to automation drivers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/config"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/history"
	"github.com/odvcencio/autobridge/pkg/session"
	"github.com/odvcencio/autobridge/pkg/telemetry"
	"github.com/odvcencio/autobridge/pkg/transport"
)

// Version information - set via ldflags during build
var (
	version = "1.0.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file")
		bindAddr    = flag.String("bind", "", "override server bind address")
		historyPath = flag.String("history", "", "override history database path")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("autobridge %s (%s)\n", version, commit)
		return
	}

	if err := run(*configPath, *bindAddr, *historyPath); err != nil {
		fmt.Fprintf(os.Stderr, "autobridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bindAddr, historyPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if bindAddr != "" {
		cfg.Server.BindAddress = bindAddr
	}
	if historyPath != "" {
		cfg.History.Path = historyPath
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider("autobridge", version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := eventhub.NewHub()
	defer hub.Close()

	shell := app.NewSimShell(hub)
	shell.AutoFinishLoads = cfg.Sim.AutoFinishLoads

	if cfg.NATS.Enabled {
		relay, err := eventhub.NewRelay(hub, eventhub.RelayConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Name:          "autobridge",
			Timeout:       cfg.NATS.Timeout,
		})
		if err != nil {
			return fmt.Errorf("connect event relay: %w", err)
		}
		defer relay.Close()
		logger.Info("event relay enabled", "url", cfg.NATS.URL, "subject", cfg.NATS.SubjectPrefix)
	}

	var onLastBrowser func()
	if cfg.Server.ExitOnLastBrowser {
		onLastBrowser = func() {
			logger.Info("last browser closed, shutting down")
			stop()
		}
	}

	server := transport.NewServer(transport.Config{
		BindAddress:         cfg.Server.BindAddress,
		Shell:               shell,
		Hub:                 hub,
		History:             store,
		Logger:              logger,
		Loop:                session.NewLoop(),
		OnLastBrowserClosed: onLastBrowser,
	})

	logger.Info("starting autobridge", "version", version, "bind", cfg.Server.BindAddress)
	return server.Start(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
