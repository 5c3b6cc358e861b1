// Package bootstrap builds the shared dependencies of the binaries from Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spacesedan/leadscout/config"
	"github.com/spacesedan/leadscout/internal/advisor"
	"github.com/spacesedan/leadscout/internal/ai"
	"github.com/spacesedan/leadscout/internal/clients"
	"github.com/spacesedan/leadscout/internal/clients/kafka_client"
	"github.com/spacesedan/leadscout/internal/db"
	"github.com/spacesedan/leadscout/internal/enrichment"
	"github.com/spacesedan/leadscout/internal/gate"
	"github.com/spacesedan/leadscout/internal/identity"
	"github.com/spacesedan/leadscout/internal/logging"
	"github.com/spacesedan/leadscout/internal/memstore"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/monitoring"
	"github.com/spacesedan/leadscout/internal/notify"
	"github.com/spacesedan/leadscout/internal/pgmq"
	"github.com/spacesedan/leadscout/internal/pipeline"
	"github.com/spacesedan/leadscout/internal/plans"
	"github.com/spacesedan/leadscout/internal/poller"
	"github.com/spacesedan/leadscout/internal/quota"
	"github.com/spacesedan/leadscout/internal/watch"
)

// Repository is everything the binaries need from storage. Both the Postgres
// store and the in-memory store satisfy it.
type Repository interface {
	watch.Store
	gate.Store
	quota.CounterReader
	plans.UserPlans
	notify.Store
	enrichment.LeadStore
	enrichment.PendingStore
	identity.UserStore
	advisor.ProfileStore
	poller.Checkpoints
	FindLead(ctx context.Context, userID, postID string) (models.Lead, error)
}

type UsageLedger interface {
	ai.UsageRecorder
	ai.SpendReader
}

type App struct {
	Config   *config.Config
	Repo     Repository
	Usage    UsageLedger
	Reporter monitoring.Reporter
	Pgmq     *pgmq.Client

	producer *kafka_client.Producer
	valkey   *clients.ValkeyClient
	memQueue *enrichment.MemoryQueue
	metered  *ai.Metered
	closers  []func()
}

// Init loads .env.<APP_ENV>, the typed config and the logger.
func Init() (*config.Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.InitLogger(cfg.LogLevel)
	return cfg, nil
}

// New connects storage, the usage ledger and the error reporter.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	reporters := monitoring.Multi{monitoring.SlogReporter{}}
	if cfg.SentryDSN != "" {
		sentry, err := monitoring.NewSentryReporter(cfg.SentryDSN, cfg.AppEnv)
		if err != nil {
			slog.Warn("[Bootstrap] Sentry init failed, reporting to logs only", slog.String("error", err.Error()))
		} else {
			reporters = append(reporters, sentry)
			app.closers = append(app.closers, sentry.Flush)
		}
	}
	app.Reporter = reporters

	switch cfg.StorageBackend {
	case "memory":
		store := memstore.New()
		app.Repo, app.Usage = store, store
	default:
		pool, err := clients.NewPostgresPool(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pool.Close)
		store := db.NewStore(pool)
		app.Repo, app.Usage = store, store
		app.Pgmq = pgmq.New(pool)
	}

	if cfg.UsageBackend == "dynamodb" {
		client, err := clients.NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Usage = db.NewDynamoUsageLedger(client, cfg.DynamoDBUsageTable)
	}
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) Limits() *plans.Provider {
	return plans.NewProvider(a.Config.Plans, a.Repo, a.Config.DefaultPlan)
}

func (a *App) WatchService() *watch.Service {
	return watch.NewService(a.Repo, a.Limits())
}

// Producer connects to Kafka, retrying until ctx is done.
func (a *App) Producer(ctx context.Context) (*kafka_client.Producer, error) {
	if a.producer != nil {
		return a.producer, nil
	}
	cfg := kafka_client.KafkaConfig{Broker: a.Config.KafkaBroker, GroupID: a.Config.KafkaGroupID}
	for {
		p, err := kafka_client.NewProducer(cfg)
		if err == nil {
			a.producer = p
			a.closers = append(a.closers, p.Close)
			return p, nil
		}
		slog.Warn("[Bootstrap] Kafka init failed, retrying...", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (a *App) Valkey() (*clients.ValkeyClient, error) {
	if a.valkey != nil {
		return a.valkey, nil
	}
	vc, err := clients.NewValkeyClient(clients.NewValkeyOptions(a.Config.ValkeyAddress, a.Config.ValkeyPassword, a.Config.ValkeyTLS))
	if err != nil {
		return nil, err
	}
	a.valkey = vc
	a.closers = append(a.closers, vc.Close)
	return vc, nil
}

// EnrichmentQueue returns the configured queue. consume subscribes a consumer
// as well, for the enrichment worker.
func (a *App) EnrichmentQueue(ctx context.Context, consume bool) (enrichment.Queue, error) {
	switch a.Config.QueueBackend {
	case "memory":
		if a.memQueue == nil {
			a.memQueue = enrichment.NewMemoryQueue(1024)
			a.closers = append(a.closers, func() { _ = a.memQueue.Close() })
		}
		return a.memQueue, nil
	case "pgmq":
		if a.Pgmq == nil {
			return nil, fmt.Errorf("[Bootstrap] QUEUE_BACKEND=pgmq needs STORAGE_BACKEND=postgres")
		}
		if err := a.Pgmq.Create(ctx, a.Config.PgmqEnrichmentName); err != nil {
			return nil, err
		}
		return pgmq.NewEnrichmentQueue(a.Pgmq, a.Config.PgmqEnrichmentName, a.Config.EnrichVisibility), nil
	default:
		producer, err := a.Producer(ctx)
		if err != nil {
			return nil, err
		}
		if !consume {
			return kafka_client.NewEnrichmentQueue(producer, nil), nil
		}
		consumer, err := kafka_client.NewConsumer(kafka_client.KafkaConfig{
			Broker:  a.Config.KafkaBroker,
			GroupID: a.Config.KafkaGroupID + "-enricher",
		}, kafka_client.KAFKA_TOPIC_LEAD_ENRICHMENT)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = consumer.Close() })
		return kafka_client.NewEnrichmentQueue(producer, consumer), nil
	}
}

func (a *App) NotificationSink(ctx context.Context) (notify.Sink, error) {
	if a.Config.NotifySink == "log" {
		return notify.LogSink{}, nil
	}
	producer, err := a.Producer(ctx)
	if err != nil {
		return nil, err
	}
	return kafka_client.NewNotificationSink(producer), nil
}

func (a *App) Dispatcher(ctx context.Context) (*notify.Dispatcher, error) {
	sink, err := a.NotificationSink(ctx)
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(a.Repo, sink), nil
}

func (a *App) Cooldowns() (poller.Cooldowns, error) {
	if a.Config.CooldownBackend == "memory" {
		return poller.NewMemoryCooldowns(), nil
	}
	vc, err := a.Valkey()
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// Source builds the Reddit source. Watches without an account use the
// configured one.
func (a *App) Source() *clients.RedditSource {
	rc := clients.NewRedditClient(a.Config.RedditAccount, a.Config.RedditClientID, a.Config.RedditClientSecret, a.Config.RedditUserAgent)
	return clients.NewRedditSource(a.Config.RedditAccount, rc)
}

// Poller wires the registry, source and processor into a poller.
func (a *App) Poller(ctx context.Context, handler poller.BatchHandler) (*poller.Poller, error) {
	cooldowns, err := a.Cooldowns()
	if err != nil {
		return nil, err
	}
	return poller.New(watch.NewRegistry(a.Repo), a.Source(), handler, a.Repo, cooldowns, poller.Config{
		MaxConcurrency: a.Config.PollMaxConcurrency,
		MaxAttempts:    a.Config.PollMaxAttempts,
		BackoffInitial: a.Config.PollBackoffInitial,
		BackoffMax:     a.Config.PollBackoffMax,
		RatePerMinute:  a.Config.SourceRatePerMinute,
		Burst:          a.Config.SourceBurst,
		Cooldown:       a.Config.RateLimitCooldown,
		Overlap:        a.Config.PollOverlap,
	}), nil
}

// Processor wires matcher, scorer, quota, gate, dispatcher and enrichment queue.
func (a *App) Processor(ctx context.Context) (*pipeline.Processor, error) {
	queue, err := a.EnrichmentQueue(ctx, false)
	if err != nil {
		return nil, err
	}
	dispatcher, err := a.Dispatcher(ctx)
	if err != nil {
		return nil, err
	}
	enforcer := quota.NewEnforcer(a.Limits(), a.Repo)
	p := pipeline.NewProcessor(enforcer, gate.New(a.Repo), dispatcher, queue, a.Reporter)

	if a.Config.CooldownBackend == "valkey" {
		vc, err := a.Valkey()
		if err != nil {
			return nil, err
		}
		p.WithSeenCache(vc)
	}
	return p, nil
}

// AI returns the configured provider wrapped with the budget guard and usage ledger.
func (a *App) AI(ctx context.Context) (*ai.Metered, error) {
	if a.metered != nil {
		return a.metered, nil
	}
	var provider ai.Provider
	switch a.Config.AIProvider {
	case "gemini":
		p, err := clients.NewGeminiClient(ctx, a.Config.GeminiAPIKey, a.Config.GeminiModel)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		p, err := clients.NewOpenAIClient(a.Config.OpenAIAPIKey, a.Config.OpenAIModel)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	guard := ai.NewBudgetGuard(a.Usage, ai.Budget{
		UserDailyTokens:    a.Config.BudgetUserDailyTokens,
		UserDailyCostUSD:   a.Config.BudgetUserDailyCostUSD,
		GlobalDailyCostUSD: a.Config.BudgetGlobalDailyCostUSD,
	})
	a.metered = ai.NewMetered(provider, guard, a.Usage)
	return a.metered, nil
}

func (a *App) Advisor(ctx context.Context) (*advisor.Advisor, error) {
	svc, err := a.AI(ctx)
	if err != nil {
		return nil, err
	}
	return advisor.New(svc, a.Repo, a.Config.EnrichCallTimeout), nil
}

// Worker builds the enrichment worker over the configured queue and AI service.
func (a *App) Worker(ctx context.Context) (*enrichment.Worker, error) {
	queue, err := a.EnrichmentQueue(ctx, true)
	if err != nil {
		return nil, err
	}
	svc, err := a.AI(ctx)
	if err != nil {
		return nil, err
	}
	w := enrichment.NewWorker(queue, a.Repo, a.Repo, svc, a.Reporter, enrichment.WorkerConfig{
		Concurrency:      a.Config.EnrichConcurrency,
		CallTimeout:      a.Config.EnrichCallTimeout,
		MaxAttempts:      a.Config.EnrichMaxAttempts,
		RetryBase:        a.Config.EnrichRetryBase,
		RetryMax:         a.Config.EnrichRetryMax,
		GenerateResponse: a.Config.EnrichGenerateResponse,
	})
	if a.Config.NotifyOnEnrichment {
		dispatcher, err := a.Dispatcher(ctx)
		if err != nil {
			return nil, err
		}
		w.WithNotifier(dispatcher)
	}
	return w, nil
}

// RunWorker runs w with the provider health loop and the stale-pending sweep
// until ctx is done.
func (a *App) RunWorker(ctx context.Context, w *enrichment.Worker) error {
	queue, err := a.EnrichmentQueue(ctx, false)
	if err != nil {
		return err
	}
	go monitoring.MonitorHealth(ctx, "ai-provider", a.metered, &w.Healthy, monitoring.HEALTHCHECK_INTERVAL)
	go enrichment.NewSweeper(a.Repo, queue, a.Config.EnrichStaleAfter).Run(ctx, a.Config.EnrichSweepInterval)
	return w.Run(ctx)
}

var (
	_ Repository  = (*memstore.Store)(nil)
	_ Repository  = (*db.Store)(nil)
	_ UsageLedger = (*db.DynamoUsageLedger)(nil)
)
