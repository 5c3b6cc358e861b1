package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spacesedan/leadscout/internal/plans"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	StorageBackend  string `envconfig:"STORAGE_BACKEND" default:"postgres" validate:"oneof=postgres memory"`
	QueueBackend    string `envconfig:"QUEUE_BACKEND" default:"kafka" validate:"oneof=kafka pgmq memory"`
	CooldownBackend string `envconfig:"COOLDOWN_BACKEND" default:"valkey" validate:"oneof=valkey memory"`
	UsageBackend    string `envconfig:"USAGE_BACKEND" default:"postgres" validate:"oneof=postgres dynamodb"`
	NotifySink      string `envconfig:"NOTIFY_SINK" default:"kafka" validate:"oneof=kafka log"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"leadscout"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"leadscout"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	KafkaBroker        string `envconfig:"KAFKA_BROKER" default:"localhost:29092"`
	KafkaGroupID       string `envconfig:"KAFKA_CONSUMER_GROUP_ID" default:"leadscout"`
	PgmqEnrichmentName string `envconfig:"PGMQ_ENRICHMENT_QUEUE" default:"lead_enrichment"`

	ValkeyAddress  string `envconfig:"VALKEY_INIT_ADDRESS" default:"localhost:6379"`
	ValkeyPassword string `envconfig:"VALKEY_PASSWORD"`
	ValkeyTLS      bool   `envconfig:"VALKEY_TLS" default:"false"`

	RedditClientID     string `envconfig:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `envconfig:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `envconfig:"REDDIT_USER_AGENT" default:"leadscout/1.0 (+https://github.com/spacesedan/leadscout)"`
	RedditAccount      string `envconfig:"REDDIT_ACCOUNT" default:"default"`

	AIProvider   string `envconfig:"AI_PROVIDER" default:"openai" validate:"oneof=openai gemini"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	AWSEndpoint        string `envconfig:"AWS_ENDPOINT"`
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-west-2"`
	DynamoDBUsageTable string `envconfig:"DYNAMODB_USAGE_TABLE" default:"AIUsage"`

	PollInterval        time.Duration `envconfig:"POLL_INTERVAL" default:"5m" validate:"gt=0"`
	PollMaxConcurrency  int           `envconfig:"POLL_MAX_CONCURRENCY" default:"4" validate:"min=1"`
	PollMaxAttempts     uint          `envconfig:"POLL_MAX_ATTEMPTS" default:"4" validate:"min=1"`
	PollBackoffInitial  time.Duration `envconfig:"POLL_BACKOFF_INITIAL" default:"1s"`
	PollBackoffMax      time.Duration `envconfig:"POLL_BACKOFF_MAX" default:"32s"`
	SourceRatePerMinute int           `envconfig:"SOURCE_RATE_PER_MINUTE" default:"60" validate:"min=1"`
	SourceBurst         int           `envconfig:"SOURCE_BURST" default:"5" validate:"min=1"`
	RateLimitCooldown   time.Duration `envconfig:"RATE_LIMIT_COOLDOWN" default:"2m"`
	PollOverlap         time.Duration `envconfig:"POLL_OVERLAP" default:"1m"`

	EnrichConcurrency      int           `envconfig:"ENRICH_CONCURRENCY" default:"4" validate:"min=1"`
	EnrichCallTimeout      time.Duration `envconfig:"ENRICH_CALL_TIMEOUT" default:"45s" validate:"gt=0"`
	EnrichMaxAttempts      int           `envconfig:"ENRICH_MAX_ATTEMPTS" default:"5" validate:"min=1"`
	EnrichRetryBase        time.Duration `envconfig:"ENRICH_RETRY_BASE" default:"30s"`
	EnrichRetryMax         time.Duration `envconfig:"ENRICH_RETRY_MAX" default:"15m"`
	EnrichGenerateResponse bool          `envconfig:"ENRICH_GENERATE_RESPONSE" default:"true"`
	EnrichSweepInterval    time.Duration `envconfig:"ENRICH_SWEEP_INTERVAL" default:"10m"`
	EnrichStaleAfter       time.Duration `envconfig:"ENRICH_STALE_AFTER" default:"30m"`
	EnrichVisibility       time.Duration `envconfig:"ENRICH_VISIBILITY" default:"5m"`

	BudgetUserDailyTokens    int64   `envconfig:"BUDGET_USER_DAILY_TOKENS" default:"200000"`
	BudgetUserDailyCostUSD   float64 `envconfig:"BUDGET_USER_DAILY_COST_USD" default:"1.00"`
	BudgetGlobalDailyCostUSD float64 `envconfig:"BUDGET_GLOBAL_DAILY_COST_USD" default:"50.00"`

	Plans       plans.Table `envconfig:"PLAN_LIMITS" default:"free_trial=1/5,starter=3/25,growth=10/100,agency=50/500"`
	DefaultPlan string      `envconfig:"DEFAULT_PLAN_ID" default:"free_trial"`

	NotifyOnEnrichment bool          `envconfig:"NOTIFY_ON_ENRICHMENT" default:"false"`
	ReconcileWindow    time.Duration `envconfig:"RECONCILE_WINDOW" default:"24h"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

// Load decodes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("[Config] failed to process env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("[Config] invalid configuration: %w", err)
	}
	if _, ok := cfg.Plans[cfg.DefaultPlan]; !ok {
		return nil, fmt.Errorf("[Config] default plan %q is not in PLAN_LIMITS", cfg.DefaultPlan)
	}
	return &cfg, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}
