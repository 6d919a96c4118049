package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	corecfg "github.com/cartwatch-lab/cartwatch/internal/core/config"
	"github.com/cartwatch-lab/cartwatch/internal/ingestion"
	"github.com/cartwatch-lab/cartwatch/internal/ledger"
	"github.com/cartwatch-lab/cartwatch/internal/notify"
	"github.com/cartwatch-lab/cartwatch/internal/recovery"
	"github.com/cartwatch-lab/cartwatch/internal/server"
)

func main() {
	configPath := flag.String("config", "cartwatch.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	webhookTimeout, err := cfg.Webhook.TimeoutDuration()
	if err != nil {
		slog.Error("Invalid webhook timeout", "value", cfg.Webhook.Timeout, "error", err)
		os.Exit(1)
	}
	checkInterval, err := cfg.Recovery.IntervalDuration()
	if err != nil {
		slog.Error("Invalid recovery interval", "value", cfg.Recovery.CheckInterval, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Notification Sink
	sink := notify.NewWebhookSink(cfg.Webhook.URL, webhookTimeout)
	reporter := notify.LogReporter{}

	// 3. Initialize Cart Ledger
	cartLedger := ledger.New(sink, reporter)

	// 4. Initialize Recovery Scheduler
	scheduler := recovery.NewScheduler(checkInterval, cartLedger, sink, reporter, cfg.Timeouts)

	slog.Info("Recovery scheduler initialized",
		"interval", checkInterval,
		"enabled", cfg.Recovery.Enabled,
		"cold_timeout", cfg.Timeouts.Cold,
		"warm_timeout", cfg.Timeouts.Warm,
		"hot_timeout", cfg.Timeouts.Hot,
	)

	// 5. Initialize Ingestion + Server
	ingestionSvc := ingestion.NewService(cartLedger, cfg.Server.MaxBodySizeMB)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), cartLedger, cfg.Server.Mode, cfg.Server.AllowedOrigins)
	ingestionSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Recovery.Enabled {
		g.Go(func() error {
			return scheduler.Start(ctx)
		})
	} else {
		slog.Info("Recovery scheduler disabled by config")
	}

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
