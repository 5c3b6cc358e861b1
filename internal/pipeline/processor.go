package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/leadscout/internal/enrichment"
	"github.com/spacesedan/leadscout/internal/matcher"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/monitoring"
	"github.com/spacesedan/leadscout/internal/scoring"
	"github.com/spacesedan/leadscout/internal/sentiment"
)

// ErrBatchIncomplete means at least one item hit a storage error that a later
// poll may get past. The caller should keep its checkpoint.
var ErrBatchIncomplete = errors.New("batch incomplete")

type Claimer interface {
	Claim(ctx context.Context, userID string, at time.Time) (models.QuotaClaim, error)
}

type Submitter interface {
	Submit(ctx context.Context, lead *models.Lead, claim models.QuotaClaim) (models.AcceptOutcome, error)
}

type LeadDispatcher interface {
	DispatchLead(ctx context.Context, lead models.Lead) error
}

type Enqueuer interface {
	Publish(ctx context.Context, job enrichment.Job) error
}

// SeenCache short-circuits candidates already settled by the gate. It is a hint
// only; the gate stays the authority on uniqueness.
type SeenCache interface {
	IsSeen(ctx context.Context, userID, postID string) bool
	MarkSeen(ctx context.Context, userID, postID string) error
}

type noSeenCache struct{}

func (noSeenCache) IsSeen(context.Context, string, string) bool   { return false }
func (noSeenCache) MarkSeen(context.Context, string, string) error { return nil }

type Outcome string

const (
	OutcomeRejected      Outcome = "rejected"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeAccepted      Outcome = "accepted"
	OutcomeFailed        Outcome = "failed"
)

type Result struct {
	Outcome Outcome
	LeadID  string
	Score   int
	Reason  string
	Err     error
}

// Processor takes matched content through scoring, quota and the gate, then
// notifies and queues enrichment for the leads it creates.
type Processor struct {
	enforcer   Claimer
	gate       Submitter
	dispatcher LeadDispatcher
	queue      Enqueuer
	reporter   monitoring.Reporter
	seen       SeenCache
	now        func() time.Time
}

func NewProcessor(enforcer Claimer, gate Submitter, dispatcher LeadDispatcher, queue Enqueuer, reporter monitoring.Reporter) *Processor {
	return &Processor{
		enforcer:   enforcer,
		gate:       gate,
		dispatcher: dispatcher,
		queue:      queue,
		reporter:   reporter,
		seen:       noSeenCache{},
		now:        time.Now,
	}
}

func (p *Processor) WithSeenCache(c SeenCache) *Processor {
	p.seen = c
	return p
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// HandleBatch processes items for w in order. One item failing never stops the
// rest of the batch.
func (p *Processor) HandleBatch(ctx context.Context, w models.Watch, items []models.ContentItem) error {
	tally := map[Outcome]int{}
	retryable := 0
	for _, item := range items {
		res := p.Process(ctx, w, item)
		tally[res.Outcome]++
		if res.Outcome == OutcomeFailed && !errors.Is(res.Err, models.ErrPersistenceConflict) {
			retryable++
		}
	}

	slog.Info("[Pipeline] Batch processed",
		slog.String("watch_id", w.ID),
		slog.String("user_id", w.UserID),
		slog.String("subreddit", w.Subreddit),
		slog.Int("items", len(items)),
		slog.Int("accepted", tally[OutcomeAccepted]),
		slog.Int("duplicate", tally[OutcomeDuplicate]),
		slog.Int("quota_exceeded", tally[OutcomeQuotaExceeded]),
		slog.Int("rejected", tally[OutcomeRejected]),
		slog.Int("failed", tally[OutcomeFailed]))

	if retryable > 0 {
		return fmt.Errorf("%w: %d of %d items for r/%s", ErrBatchIncomplete, retryable, len(items), w.Subreddit)
	}
	return nil
}

// Process runs one content item through the matcher and on to the gate.
func (p *Processor) Process(ctx context.Context, w models.Watch, item models.ContentItem) Result {
	match := matcher.Match(item, w)
	if !match.Accepted {
		slog.Debug("[Pipeline] Item rejected by matcher",
			slog.String("user_id", w.UserID),
			slog.String("post_id", item.PostID),
			slog.String("reason", string(match.Reason)))
		return Result{Outcome: OutcomeRejected, Reason: string(match.Reason)}
	}
	return p.submit(ctx, w.UserID, w.ID, item, match.Strength, models.OriginSystem)
}

// Replay creates an admin-origin lead for item. The matcher is skipped but the
// candidate is still deduplicated and counted against the user's quota.
func (p *Processor) Replay(ctx context.Context, userID, watchID string, item models.ContentItem) Result {
	return p.submit(ctx, userID, watchID, item, 1, models.OriginAdmin)
}

func (p *Processor) submit(ctx context.Context, userID, watchID string, item models.ContentItem, strength float64, origin models.LeadOrigin) Result {
	fields := monitoring.Fields{
		Component: "Pipeline",
		UserID:    userID,
		Subreddit: item.Subreddit,
		PostID:    item.PostID,
	}

	if p.seen.IsSeen(ctx, userID, item.PostID) {
		return Result{Outcome: OutcomeDuplicate}
	}

	now := p.now()
	lead := &models.Lead{
		UserID:    userID,
		WatchID:   watchID,
		Subreddit: item.Subreddit,
		PostID:    item.PostID,
		ParentID:  item.ParentID,
		Type:      item.Type,
		Title:     item.Title,
		Content:   item.Content,
		Author:    item.Author,
		URL:       item.URL,
		Origin:    origin,
		PostedAt:  item.CreatedAt,
	}
	lead.PriorityScore = scoring.Score(scoring.Signals{
		MatchStrength:   strength,
		PostedAt:        item.CreatedAt,
		Now:             now,
		SubscriberCount: item.SubscriberCount,
		Type:            item.Type,
		Origin:          origin,
		Sentiment:       sentiment.Compound(item.Title + "\n\n" + item.Content),
	})

	claim, err := p.enforcer.Claim(ctx, userID, now)
	if errors.Is(err, models.ErrQuotaExceeded) {
		return p.quotaExceeded(userID, item)
	}
	if err != nil {
		p.reporter.Report(ctx, err, fields)
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	outcome, err := p.gate.Submit(ctx, lead, claim)
	switch {
	case errors.Is(err, models.ErrQuotaExceeded):
		return p.quotaExceeded(userID, item)
	case err != nil:
		p.reporter.Report(ctx, err, fields)
		return Result{Outcome: OutcomeFailed, Err: err}
	case outcome == models.OutcomeDuplicate:
		p.markSeen(ctx, userID, item.PostID)
		return Result{Outcome: OutcomeDuplicate}
	}

	p.markSeen(ctx, userID, item.PostID)
	fields.LeadID = lead.ID

	if err := p.dispatcher.DispatchLead(ctx, *lead); err != nil {
		// The reconcile sweep retries the notification.
		p.reporter.Report(ctx, err, fields)
	}

	job := enrichment.Job{LeadID: lead.ID, UserID: userID, Attempt: 1, EnqueuedAt: now}
	if err := p.queue.Publish(ctx, job); err != nil {
		// The stale-pending sweep republishes it.
		p.reporter.Report(ctx, fmt.Errorf("[Pipeline] enqueue enrichment: %w", err), fields)
	}

	return Result{Outcome: OutcomeAccepted, LeadID: lead.ID, Score: lead.PriorityScore}
}

func (p *Processor) quotaExceeded(userID string, item models.ContentItem) Result {
	slog.Info("[Pipeline] Daily lead quota reached, candidate discarded",
		slog.String("user_id", userID),
		slog.String("subreddit", item.Subreddit),
		slog.String("post_id", item.PostID))
	return Result{Outcome: OutcomeQuotaExceeded, Err: models.ErrQuotaExceeded}
}

func (p *Processor) markSeen(ctx context.Context, userID, postID string) {
	if err := p.seen.MarkSeen(ctx, userID, postID); err != nil {
		slog.Warn("[Pipeline] Failed to mark post seen",
			slog.String("user_id", userID),
			slog.String("post_id", postID),
			slog.String("error", err.Error()))
	}
}
