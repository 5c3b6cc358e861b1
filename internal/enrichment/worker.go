package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacesedan/leadscout/internal/ai"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/monitoring"
	"github.com/spacesedan/leadscout/internal/sentiment"
)

type LeadStore interface {
	GetLead(ctx context.Context, id string) (models.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, next models.LeadStatus) error
	SaveEnrichment(ctx context.Context, id string, analysis *models.LeadAnalysis, response *string) error
	SetEnrichmentState(ctx context.Context, id string, state models.EnrichmentState, attempts int) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

type AIService interface {
	Invoke(ctx context.Context, req ai.Request) (ai.Response, error)
}

// EnrichedNotifier is told about leads whose enrichment completed.
type EnrichedNotifier interface {
	NotifyEnriched(ctx context.Context, lead models.Lead) error
}

// DefaultCallTimeout bounds a single AI call when WorkerConfig leaves it unset.
const DefaultCallTimeout = 45 * time.Second

type WorkerConfig struct {
	Concurrency      int
	CallTimeout      time.Duration
	MaxAttempts      int
	RetryBase        time.Duration
	RetryMax         time.Duration
	GenerateResponse bool
}

// Worker drains the enrichment queue with a fixed pool of goroutines. Intake
// pauses while Healthy is false.
type Worker struct {
	queue    Queue
	leads    LeadStore
	users    UserStore
	ai       AIService
	notifier EnrichedNotifier
	reporter monitoring.Reporter
	cfg      WorkerConfig
	now      func() time.Time

	Healthy atomic.Bool
}

func NewWorker(queue Queue, leads LeadStore, users UserStore, svc AIService, reporter monitoring.Reporter, cfg WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	w := &Worker{
		queue:    queue,
		leads:    leads,
		users:    users,
		ai:       svc,
		reporter: reporter,
		cfg:      cfg,
		now:      time.Now,
	}
	w.Healthy.Store(true)
	return w
}

// WithNotifier enables the lead_enriched notification.
func (w *Worker) WithNotifier(n EnrichedNotifier) *Worker {
	w.notifier = n
	return w
}

func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run blocks until ctx is cancelled. In-flight AI calls are abandoned on shutdown
// and their jobs are left unsettled for redelivery.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("[EnrichmentWorker] Starting workers", slog.Int("concurrency", w.cfg.Concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	slog.Info("[EnrichmentWorker] Workers stopped")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !w.Healthy.Load() {
			slog.Warn("[EnrichmentWorker] AI provider unhealthy, pausing intake")
			sleep(ctx, 5*time.Second)
			continue
		}

		d, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("[EnrichmentWorker] Failed to receive job", slog.String("error", err.Error()))
			sleep(ctx, time.Second)
			continue
		}
		w.Handle(ctx, d)
	}
}

// Handle processes one delivery and settles it.
func (w *Worker) Handle(ctx context.Context, d Delivery) {
	job := d.Job()
	if wait := job.NotBefore.Sub(w.now()); wait > 0 {
		if !sleep(ctx, wait) {
			return
		}
	}

	err := w.Enrich(ctx, job)
	if ctx.Err() != nil {
		return
	}

	log := slog.With(
		slog.String("lead_id", job.LeadID),
		slog.String("user_id", job.UserID),
		slog.Int("attempt", job.Attempt))

	switch {
	case err == nil:
		w.ack(ctx, d)

	case errors.Is(err, models.ErrEnrichmentBudgetExceeded):
		log.Warn("[EnrichmentWorker] Budget exhausted, lead kept without enrichment", slog.String("error", err.Error()))
		w.setState(ctx, job, models.EnrichmentSkippedBudget)
		w.ack(ctx, d)

	case !ai.Retryable(err) || job.Attempt >= w.cfg.MaxAttempts:
		w.setState(ctx, job, models.EnrichmentFailed)
		w.reporter.Report(ctx, fmt.Errorf("%w: %w", models.ErrEnrichmentFailed, err), monitoring.Fields{
			Component: "EnrichmentWorker",
			UserID:    job.UserID,
			LeadID:    job.LeadID,
		})
		w.ack(ctx, d)

	default:
		delay := w.retryDelay(job.Attempt)
		log.Warn("[EnrichmentWorker] Enrichment failed, requeueing",
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		w.setState(ctx, job, models.EnrichmentPending)
		if rerr := d.Requeue(ctx, delay); rerr != nil {
			log.Error("[EnrichmentWorker] Failed to requeue job", slog.String("error", rerr.Error()))
		}
	}
}

// Enrich runs validation, analysis and the optional draft for one lead. A lead the
// validator rejects is marked deleted. It returns nil when nothing is left to do.
func (w *Worker) Enrich(ctx context.Context, job Job) error {
	lead, err := w.leads.GetLead(ctx, job.LeadID)
	if errors.Is(err, models.ErrNotFound) {
		slog.Warn("[EnrichmentWorker] Lead not found, dropping job", slog.String("lead_id", job.LeadID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lead %s: %w", job.LeadID, err)
	}
	if lead.Status == models.LeadDeleted || lead.EnrichmentState == models.EnrichmentDone {
		return nil
	}

	var business *models.BusinessProfile
	user, err := w.users.GetUser(ctx, lead.UserID)
	switch {
	case err == nil:
		business = user.BusinessProfile
	case errors.Is(err, models.ErrNotFound):
	default:
		return fmt.Errorf("load user %s: %w", lead.UserID, err)
	}

	input := ai.LeadInput{
		Business:  business,
		Subreddit: lead.Subreddit,
		Type:      lead.Type,
		Title:     lead.Title,
		Content:   sentiment.ConvertMarkdownToText(lead.Content),
	}

	var validation ai.Validation
	if err := w.invoke(ctx, lead, models.OpValidateLead, input, &validation); err != nil {
		return err
	}
	if !validation.Relevant {
		return w.disqualify(ctx, lead, validation)
	}

	var analysis ai.Analysis
	if err := w.invoke(ctx, lead, models.OpAnalyzeLead, input, &analysis); err != nil {
		return err
	}
	result := &models.LeadAnalysis{
		Relevant:          true,
		RelevanceScore:    validation.RelevanceScore,
		Summary:           analysis.Summary,
		PainPoints:        analysis.PainPoints,
		BuyingIntent:      analysis.BuyingIntent,
		SuggestedApproach: analysis.SuggestedApproach,
	}

	var response *string
	if w.cfg.GenerateResponse {
		input.Analysis = result
		var draft ai.Draft
		if err := w.invoke(ctx, lead, models.OpGenerateResponse, input, &draft); err != nil {
			return err
		}
		response = &draft.Response
	}

	if err := w.leads.SaveEnrichment(ctx, lead.ID, result, response); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Deleted by the user while we were working.
			return nil
		}
		return fmt.Errorf("save enrichment for %s: %w", lead.ID, err)
	}

	slog.Info("[EnrichmentWorker] Lead enriched",
		slog.String("lead_id", lead.ID),
		slog.String("user_id", lead.UserID),
		slog.Int("relevance_score", validation.RelevanceScore),
		slog.String("buying_intent", analysis.BuyingIntent))

	if w.notifier != nil {
		lead.AIAnalysis, lead.AIResponse = result, response
		if err := w.notifier.NotifyEnriched(ctx, lead); err != nil {
			slog.Warn("[EnrichmentWorker] Failed to notify enrichment",
				slog.String("lead_id", lead.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (w *Worker) disqualify(ctx context.Context, lead models.Lead, v ai.Validation) error {
	analysis := &models.LeadAnalysis{Relevant: false, RelevanceScore: v.RelevanceScore, Summary: v.Reason}
	if err := w.leads.SaveEnrichment(ctx, lead.ID, analysis, nil); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		return fmt.Errorf("save validation for %s: %w", lead.ID, err)
	}
	if err := w.leads.UpdateLeadStatus(ctx, lead.ID, models.LeadDeleted); err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		return fmt.Errorf("delete irrelevant lead %s: %w", lead.ID, err)
	}
	slog.Info("[EnrichmentWorker] Lead judged irrelevant, marked deleted",
		slog.String("lead_id", lead.ID),
		slog.String("user_id", lead.UserID),
		slog.String("reason", v.Reason))
	return nil
}

// invoke makes one AI call bounded by the call timeout and decodes its payload.
func (w *Worker) invoke(ctx context.Context, lead models.Lead, op models.AIOperation, input ai.LeadInput, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	resp, err := w.ai.Invoke(callCtx, ai.Request{
		UserID:    lead.UserID,
		LeadID:    lead.ID,
		Operation: op,
		Payload:   input,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := ai.Decode(resp.Payload, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (w *Worker) retryDelay(attempt int) time.Duration {
	delay := w.cfg.RetryBase
	for i := 1; i < attempt && delay < w.cfg.RetryMax; i++ {
		delay *= 2
	}
	return min(delay, w.cfg.RetryMax)
}

func (w *Worker) setState(ctx context.Context, job Job, state models.EnrichmentState) {
	if err := w.leads.SetEnrichmentState(ctx, job.LeadID, state, job.Attempt); err != nil && !errors.Is(err, models.ErrNotFound) {
		slog.Error("[EnrichmentWorker] Failed to record enrichment state",
			slog.String("lead_id", job.LeadID),
			slog.String("state", string(state)),
			slog.String("error", err.Error()))
	}
}

func (w *Worker) ack(ctx context.Context, d Delivery) {
	if err := d.Ack(ctx); err != nil {
		slog.Warn("[EnrichmentWorker] Failed to ack job",
			slog.String("lead_id", d.Job().LeadID),
			slog.String("error", err.Error()))
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
