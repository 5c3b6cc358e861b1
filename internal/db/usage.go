package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/models"
)

// RecordUsage inserts an immutable usage record. Replays of the same record id are
// ignored.
func (s *Store) RecordUsage(ctx context.Context, rec models.AIUsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode usage metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ai_usage (id, user_id, lead_id, operation, model, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, success, error, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.LeadID, rec.Operation, rec.Model, rec.PromptTokens, rec.CompletionTokens,
		rec.TotalTokens, rec.CostUSD, rec.Success, rec.Error, metadata, rec.CreatedAt)
	return classify(err, "record ai usage")
}

// SpendSince sums usage from since onwards. An empty userID sums every user.
func (s *Store) SpendSince(ctx context.Context, userID string, since time.Time) (models.Spend, error) {
	var spend models.Spend
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_usd), 0)::float8
		FROM ai_usage
		WHERE created_at >= $1 AND ($2 = '' OR user_id = $2)`,
		since, userID).Scan(&spend.Calls, &spend.Tokens, &spend.CostUSD)
	return spend, classify(err, "sum ai usage")
}
