package poller

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spacesedan/leadscout/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Source interface {
	FetchSince(ctx context.Context, account, subreddit string, since time.Time, types []models.ContentType) ([]models.ContentItem, error)
}

type Registry interface {
	ListActive(ctx context.Context) ([]models.Watch, error)
}

type Checkpoints interface {
	AdvanceCheckpoint(ctx context.Context, watchID string, to time.Time) error
}

type Cooldowns interface {
	CooldownUntil(ctx context.Context, account string) (time.Time, error)
	StartCooldown(ctx context.Context, account string, until time.Time) error
}

// BatchHandler receives a watch's new items, oldest first. It returns an error only
// when the batch as a whole could not be handed off.
type BatchHandler interface {
	HandleBatch(ctx context.Context, w models.Watch, items []models.ContentItem) error
}

type Config struct {
	MaxConcurrency int
	MaxAttempts    uint
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	RatePerMinute  int
	Burst          int
	// Cooldown applies when a rate-limit response carries no retry hint.
	Cooldown time.Duration
	// Overlap re-reads this much before the checkpoint so items sharing the
	// checkpoint's second are not skipped. The gate absorbs the repeats.
	Overlap time.Duration
}

type Outcome string

const (
	OutcomePolled      Outcome = "polled"
	OutcomeCoolingDown Outcome = "cooling_down"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
)

type CycleReport struct {
	Watches  int
	Items    int
	Outcomes map[Outcome]int
}

type Poller struct {
	registry    Registry
	source      Source
	handler     BatchHandler
	checkpoints Checkpoints
	cooldowns   Cooldowns
	cfg         Config
	now         func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(registry Registry, source Source, handler BatchHandler, checkpoints Checkpoints, cooldowns Cooldowns, cfg Config) *Poller {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RatePerMinute < 1 {
		cfg.RatePerMinute = 60
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Poller{
		registry:    registry,
		source:      source,
		handler:     handler,
		checkpoints: checkpoints,
		cooldowns:   cooldowns,
		cfg:         cfg,
		now:         time.Now,
		limiters:    map[string]*rate.Limiter{},
	}
}

func (p *Poller) WithClock(now func() time.Time) *Poller {
	p.now = now
	return p
}

// Run polls every interval until ctx is cancelled. A cycle in progress when ctx
// is cancelled stops fetching but finishes the batches it already holds.
func (p *Poller) Run(ctx context.Context, interval time.Duration, afterCycle func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := p.RunCycle(ctx)
		if err != nil && ctx.Err() == nil {
			slog.Error("[Poller] Cycle failed", slog.String("error", err.Error()))
		} else if err == nil {
			slog.Info("[Poller] Cycle complete",
				slog.Int("watches", report.Watches),
				slog.Int("items", report.Items),
				slog.Any("outcomes", report.Outcomes))
		}
		if afterCycle != nil && ctx.Err() == nil {
			afterCycle(ctx)
		}

		select {
		case <-ctx.Done():
			slog.Info("[Poller] Shutting down poller gracefully...")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle polls every active watch once, at most MaxConcurrency at a time. One
// watch failing never affects the others.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	watches, err := p.registry.ListActive(ctx)
	if err != nil {
		return CycleReport{}, err
	}

	report := CycleReport{Watches: len(watches), Outcomes: map[Outcome]int{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, w := range watches {
		g.Go(func() error {
			outcome, items := p.pollWatch(ctx, w)
			mu.Lock()
			report.Outcomes[outcome]++
			report.Items += items
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

func (p *Poller) pollWatch(ctx context.Context, w models.Watch) (Outcome, int) {
	account := w.Account()
	log := slog.With(
		slog.String("watch_id", w.ID),
		slog.String("user_id", w.UserID),
		slog.String("subreddit", w.Subreddit),
		slog.String("account", account))

	until, err := p.cooldowns.CooldownUntil(ctx, account)
	if err != nil {
		log.Warn("[Poller] Could not read cooldown, polling anyway", slog.String("error", err.Error()))
	}
	if p.now().Before(until) {
		log.Debug("[Poller] Source account cooling down, deferring watch", slog.Time("until", until))
		return OutcomeCoolingDown, 0
	}

	since := w.LastCheckpoint.Add(-p.cfg.Overlap)
	limiter := p.limiter(account)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.cfg.BackoffInitial
	expo.MaxInterval = p.cfg.BackoffMax

	items, err := backoff.Retry(ctx, func() ([]models.ContentItem, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		items, err := p.source.FetchSince(ctx, account, w.Subreddit, since, w.ContentTypes)
		if errors.Is(err, models.ErrRateLimited) {
			return nil, backoff.Permanent(err)
		}
		return items, err
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(p.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("[Poller] Fetch failed, retrying with backoff",
				slog.String("error", err.Error()),
				slog.Duration("backoff", next))
		}),
	)

	if errors.Is(err, models.ErrRateLimited) {
		p.startCooldown(ctx, account, err)
		return OutcomeRateLimited, 0
	}
	if err != nil {
		log.Error("[Poller] Fetch failed, deferring to next cycle", slog.String("error", err.Error()))
		return OutcomeFailed, 0
	}
	if len(items) == 0 {
		return OutcomePolled, 0
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	// The batch is handed off in full even if shutdown starts now.
	handoff := context.WithoutCancel(ctx)
	if err := p.handler.HandleBatch(handoff, w, items); err != nil {
		log.Error("[Poller] Batch hand-off failed, checkpoint kept", slog.String("error", err.Error()))
		return OutcomeFailed, 0
	}

	newest := items[len(items)-1].CreatedAt
	if newest.After(w.LastCheckpoint) {
		if err := p.checkpoints.AdvanceCheckpoint(handoff, w.ID, newest); err != nil {
			log.Error("[Poller] Failed to advance checkpoint", slog.String("error", err.Error()))
			return OutcomeFailed, len(items)
		}
	}
	log.Info("[Poller] Watch polled",
		slog.Int("items", len(items)),
		slog.Time("checkpoint", newest))
	return OutcomePolled, len(items)
}

func (p *Poller) startCooldown(ctx context.Context, account string, err error) {
	wait := p.cfg.Cooldown
	var rl *models.RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		wait = rl.RetryAfter
	}
	until := p.now().Add(wait)
	if cerr := p.cooldowns.StartCooldown(ctx, account, until); cerr != nil {
		slog.Error("[Poller] Failed to store cooldown",
			slog.String("account", account),
			slog.String("error", cerr.Error()))
		return
	}
	slog.Warn("[Poller] Source account rate limited, cooling down",
		slog.String("account", account),
		slog.Duration("cooldown", wait))
}

func (p *Poller) limiter(account string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[account]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.cfg.RatePerMinute)), p.cfg.Burst)
		p.limiters[account] = l
	}
	return l
}
