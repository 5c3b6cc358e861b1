package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/leadscout/internal/models"
)

type PendingStore interface {
	LeadsPendingEnrichment(ctx context.Context, olderThan time.Time, limit int) ([]models.Lead, error)
	SetEnrichmentState(ctx context.Context, id string, state models.EnrichmentState, attempts int) error
}

// Sweeper republishes leads that have sat in the pending state too long, covering
// jobs lost between acceptance and publish or dropped by a queue backend.
type Sweeper struct {
	leads      PendingStore
	queue      Queue
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func NewSweeper(leads PendingStore, queue Queue, staleAfter time.Duration) *Sweeper {
	return &Sweeper{leads: leads, queue: queue, staleAfter: staleAfter, batch: 500, now: time.Now}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	leads, err := s.leads.LeadsPendingEnrichment(ctx, s.now().Add(-s.staleAfter), s.batch)
	if err != nil {
		return 0, fmt.Errorf("[EnrichmentSweeper] list stale leads: %w", err)
	}

	republished := 0
	for _, lead := range leads {
		job := Job{
			LeadID:     lead.ID,
			UserID:     lead.UserID,
			Attempt:    lead.EnrichmentAttempts + 1,
			EnqueuedAt: s.now(),
		}
		if err := s.queue.Publish(ctx, job); err != nil {
			slog.Error("[EnrichmentSweeper] Failed to republish job",
				slog.String("lead_id", lead.ID),
				slog.String("error", err.Error()))
			continue
		}
		// Touch the lead so the next sweep does not pick it up again straight away.
		if err := s.leads.SetEnrichmentState(ctx, lead.ID, models.EnrichmentPending, lead.EnrichmentAttempts); err != nil {
			slog.Warn("[EnrichmentSweeper] Failed to touch lead",
				slog.String("lead_id", lead.ID),
				slog.String("error", err.Error()))
		}
		republished++
	}
	if republished > 0 {
		slog.Info("[EnrichmentSweeper] Republished stale enrichment jobs", slog.Int("count", republished))
	}
	return republished, nil
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error(err.Error())
			}
		}
	}
}
