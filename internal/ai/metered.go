package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/models"
)

type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec models.AIUsageRecord) error
}

const recordAttempts = 3

// Metered wraps a provider with the budget guard and the usage ledger. Every call
// that reaches the provider yields exactly one usage record, whatever its outcome.
type Metered struct {
	provider Provider
	guard    *BudgetGuard
	usage    UsageRecorder
	now      func() time.Time
}

func NewMetered(provider Provider, guard *BudgetGuard, usage UsageRecorder) *Metered {
	return &Metered{provider: provider, guard: guard, usage: usage, now: time.Now}
}

func (m *Metered) WithClock(now func() time.Time) *Metered {
	m.now = now
	return m
}

func (m *Metered) Ping(ctx context.Context) error {
	return m.provider.Ping(ctx)
}

func (m *Metered) Invoke(ctx context.Context, req Request) (Response, error) {
	if m.guard != nil {
		if err := m.guard.Check(ctx, req.UserID); err != nil {
			return Response{}, err
		}
	}

	started := m.now()
	resp, err := m.provider.Invoke(ctx, req)

	resp.PromptTokens = max(resp.PromptTokens, 0)
	resp.CompletionTokens = max(resp.CompletionTokens, 0)
	if resp.CostUSD <= 0 {
		resp.CostUSD = Cost(resp.Model, resp.PromptTokens, resp.CompletionTokens)
	}

	rec := models.AIUsageRecord{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		LeadID:           req.LeadID,
		Operation:        req.Operation,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.PromptTokens + resp.CompletionTokens,
		CostUSD:          resp.CostUSD,
		Success:          err == nil,
		Metadata: map[string]any{
			"latency_ms": m.now().Sub(started).Milliseconds(),
		},
		CreatedAt: m.now().UTC(),
	}
	if resp.Estimated {
		rec.Metadata["estimated"] = true
	}
	if err != nil {
		rec.Error = err.Error()
	}
	m.record(rec)

	return resp, err
}

// record writes rec on a context detached from the caller so an abandoned call
// still lands in the ledger. The record id makes retries idempotent.
func (m *Metered) record(rec models.AIUsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		if err = m.usage.RecordUsage(ctx, rec); err == nil {
			return
		}
		slog.Warn("[AIUsage] Failed to record usage, retrying...",
			slog.Int("attempt", attempt),
			slog.String("usage_id", rec.ID),
			slog.String("error", err.Error()))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	slog.Error("[AIUsage] Usage record lost",
		slog.String("usage_id", rec.ID),
		slog.String("user_id", rec.UserID),
		slog.String("operation", string(rec.Operation)),
		slog.Int("total_tokens", rec.TotalTokens),
		slog.String("error", err.Error()))
}
