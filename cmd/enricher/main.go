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
	if cfg.QueueBackend == "memory" {
		slog.Error("[Main] QUEUE_BACKEND=memory runs enrichment inside the poller; nothing to consume here")
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

	worker, err := app.Worker(ctx)
	if err != nil {
		slog.Error("[Main] Failed to build enrichment worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("[Main] Enricher started",
		slog.String("queue", cfg.QueueBackend),
		slog.String("provider", cfg.AIProvider),
		slog.Int("concurrency", cfg.EnrichConcurrency))
	if err := app.RunWorker(ctx, worker); err != nil && ctx.Err() == nil {
		slog.Error("[Main] Enrichment worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("[Main] Shutting down enricher...")
}
