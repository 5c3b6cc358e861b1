package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/leadscout/internal/bootstrap"
	"github.com/spacesedan/leadscout/internal/clients/kafka_client"
	"github.com/spacesedan/leadscout/internal/clients/kafka_client/consumers"
	"github.com/spacesedan/leadscout/internal/identity"
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

	// Profile extraction is optional; without an AI key new users simply start
	// without a business profile.
	var extractor identity.ProfileExtractor
	if adv, err := app.Advisor(ctx); err != nil {
		slog.Warn("[Main] Business profile extraction disabled", slog.String("error", err.Error()))
	} else {
		extractor = adv
	}

	svc := identity.NewService(app.Repo, app.WatchService(), extractor)
	permanent := func(err error) bool { return errors.Is(err, identity.ErrMalformedEvent) }

	registry := kafka_client.NewConsumerRegistry()
	registry.Register(kafka_client.KAFKA_TOPIC_IDENTITY_EVENTS, consumers.IdentityConsumer(svc, permanent))

	slog.Info("[Main] Identity sync started", slog.String("topic", kafka_client.KAFKA_TOPIC_IDENTITY_EVENTS))
	if err := registry.Start(ctx, kafka_client.KafkaConfig{
		Broker:  cfg.KafkaBroker,
		GroupID: cfg.KafkaGroupID + "-identity",
		Topic:   kafka_client.KAFKA_TOPIC_IDENTITY_EVENTS,
	}); err != nil && ctx.Err() == nil {
		slog.Error("[Main] Failed to start consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("[Main] Shutting down identity sync...")
}
