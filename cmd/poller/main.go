package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/leadscout/internal/bootstrap"
)

func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		slog.Error("[Main] Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("[Main] Failed to connect storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer app.Close()

	processor, err := app.Processor(ctx)
	if err != nil {
		slog.Error("[Main] Failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dispatcher, err := app.Dispatcher(ctx)
	if err != nil {
		slog.Error("[Main] Failed to build dispatcher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	p, err := app.Poller(ctx, processor)
	if err != nil {
		slog.Error("[Main] Failed to build poller", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The in-memory queue only lives in this process, so its consumer has to as well.
	if cfg.QueueBackend == "memory" {
		worker, err := app.Worker(ctx)
		if err != nil {
			slog.Error("[Main] Failed to build enrichment worker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		go func() {
			if err := app.RunWorker(ctx, worker); err != nil {
				slog.Error("[Main] Enrichment worker stopped", slog.String("error", err.Error()))
			}
		}()
	}

	reconcile := func(ctx context.Context) {
		if _, err := dispatcher.Reconcile(ctx, cfg.ReconcileWindow, 500); err != nil {
			slog.Warn("[Main] Notification reconcile failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("[Main] Poller started", slog.Duration("interval", cfg.PollInterval))
	if err := p.Run(ctx, cfg.PollInterval, reconcile); err != nil && ctx.Err() == nil {
		slog.Error("[Main] Poller stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("[Main] Shutting down poller...")
}
