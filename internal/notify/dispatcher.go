package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/sentiment"
)

type Store interface {
	// CreateNotification reports false when a notification of the same kind
	// already exists for the lead.
	CreateNotification(ctx context.Context, n *models.Notification) (bool, error)
	LeadsMissingNotification(ctx context.Context, since time.Time, limit int) ([]models.Lead, error)
}

// Sink delivers a stored notification to the user. Fire-and-forget.
type Sink interface {
	Deliver(ctx context.Context, n models.Notification) error
}

type Dispatcher struct {
	store Store
	sink  Sink
	now   func() time.Time
}

func NewDispatcher(store Store, sink Sink) *Dispatcher {
	return &Dispatcher{store: store, sink: sink, now: time.Now}
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// DispatchLead records the lead_accepted notification for lead and hands it to the
// sink. Calling it again for the same lead is a no-op.
func (d *Dispatcher) DispatchLead(ctx context.Context, lead models.Lead) error {
	n := models.Notification{
		ID:      uuid.NewString(),
		UserID:  lead.UserID,
		Type:    models.NotificationLead,
		Kind:    models.KindLeadAccepted,
		LeadID:  lead.ID,
		Title:   fmt.Sprintf("New lead in r/%s", lead.Subreddit),
		Message: leadMessage(lead),
		Payload: map[string]any{
			"lead_id":        lead.ID,
			"post_id":        lead.PostID,
			"subreddit":      lead.Subreddit,
			"priority_score": lead.PriorityScore,
			"url":            lead.URL,
		},
		CreatedAt: d.now(),
	}
	return d.emit(ctx, n)
}

// NotifyEnriched tells the user the lead's analysis and draft reply are ready.
func (d *Dispatcher) NotifyEnriched(ctx context.Context, lead models.Lead) error {
	payload := map[string]any{
		"lead_id":        lead.ID,
		"priority_score": lead.PriorityScore,
	}
	if lead.AIAnalysis != nil {
		payload["summary"] = lead.AIAnalysis.Summary
	}
	if lead.AIResponse != nil {
		payload["response_html"] = sentiment.RenderHTML(*lead.AIResponse)
	}
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    lead.UserID,
		Type:      models.NotificationSystem,
		Kind:      models.KindLeadEnriched,
		LeadID:    lead.ID,
		Title:     "Lead analysis ready",
		Message:   fmt.Sprintf("We drafted a reply for your lead in r/%s.", lead.Subreddit),
		Payload:   payload,
		CreatedAt: d.now(),
	}
	return d.emit(ctx, n)
}

// Reconcile dispatches the lead_accepted notification for leads created within
// window that never got one, e.g. because the process died between accepting
// the lead and dispatching. Leads already disqualified are skipped.
func (d *Dispatcher) Reconcile(ctx context.Context, window time.Duration, limit int) (int, error) {
	leads, err := d.store.LeadsMissingNotification(ctx, d.now().Add(-window), limit)
	if err != nil {
		return 0, fmt.Errorf("[Notify] list leads missing notification: %w", err)
	}

	sent := 0
	for _, lead := range leads {
		if lead.Status == models.LeadDeleted {
			continue
		}
		if err := d.DispatchLead(ctx, lead); err != nil {
			slog.Error("[Notify] Reconcile dispatch failed",
				slog.String("lead_id", lead.ID),
				slog.String("user_id", lead.UserID),
				slog.String("error", err.Error()))
			continue
		}
		sent++
	}
	if sent > 0 {
		slog.Info("[Notify] Reconciled missing notifications", slog.Int("count", sent))
	}
	return sent, nil
}

func (d *Dispatcher) emit(ctx context.Context, n models.Notification) error {
	created, err := d.store.CreateNotification(ctx, &n)
	if err != nil {
		return fmt.Errorf("[Notify] store %s notification for lead %s: %w", n.Kind, n.LeadID, err)
	}
	if !created {
		slog.Debug("[Notify] Notification already sent", slog.String("lead_id", n.LeadID), slog.String("kind", string(n.Kind)))
		return nil
	}

	// The stored row is the record of truth; delivery is best effort.
	if err := d.sink.Deliver(ctx, n); err != nil {
		slog.Warn("[Notify] Sink delivery failed",
			slog.String("lead_id", n.LeadID),
			slog.String("user_id", n.UserID),
			slog.String("error", err.Error()))
	}
	return nil
}

func leadMessage(lead models.Lead) string {
	text := lead.Title
	if text == "" {
		text = sentiment.ConvertMarkdownToText(lead.Content)
	}
	if r := []rune(text); len(r) > 140 {
		text = string(r[:137]) + "..."
	}
	return fmt.Sprintf("u/%s (priority %d): %s", lead.Author, lead.PriorityScore, text)
}
