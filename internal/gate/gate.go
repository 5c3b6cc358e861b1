package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/models"
)

// Store settles a candidate: the lead insert guarded by the (user, post) unique
// key and the conditional daily counter increment, in one atomic step.
type Store interface {
	AcceptLead(ctx context.Context, lead *models.Lead, claim models.QuotaClaim) (models.AcceptOutcome, error)
}

// Gate is the only writer of new lead rows.
type Gate struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Submit offers lead to storage. A duplicate is reported as OutcomeDuplicate with
// a nil error; a quota refusal as OutcomeQuotaExceeded with ErrQuotaExceeded.
// Storage errors are returned wrapped; constraint conflicts other than the
// (user, post) key surface as ErrPersistenceConflict.
func (g *Gate) Submit(ctx context.Context, lead *models.Lead, claim models.QuotaClaim) (models.AcceptOutcome, error) {
	now := g.now().UTC()
	lead.ID = uuid.NewString()
	lead.Status = models.LeadNew
	lead.EnrichmentState = models.EnrichmentPending
	lead.EnrichmentAttempts = 0
	lead.StatusChangedAt = now
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if lead.Origin == "" {
		lead.Origin = models.OriginSystem
	}

	outcome, err := g.store.AcceptLead(ctx, lead, claim)
	if err != nil {
		return "", fmt.Errorf("[Gate] accept lead %s/%s: %w", lead.UserID, lead.PostID, err)
	}

	switch outcome {
	case models.OutcomeDuplicate:
		slog.Debug("[Gate] Duplicate candidate absorbed",
			slog.String("user_id", lead.UserID),
			slog.String("post_id", lead.PostID))
		return outcome, nil
	case models.OutcomeQuotaExceeded:
		return outcome, models.ErrQuotaExceeded
	default:
		slog.Info("[Gate] Lead created",
			slog.String("lead_id", lead.ID),
			slog.String("user_id", lead.UserID),
			slog.String("subreddit", lead.Subreddit),
			slog.String("post_id", lead.PostID),
			slog.Int("priority_score", lead.PriorityScore))
		return outcome, nil
	}
}
