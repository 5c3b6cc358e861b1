package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spacesedan/leadscout/internal/models"
)

const leadColumns = `id, user_id, COALESCE(watch_id, ''), subreddit, post_id, COALESCE(parent_id, ''), type,
	title, content, author, url, status, priority_score, ai_response, ai_analysis, origin,
	enrichment_state, enrichment_attempts, status_changed_at, posted_at, created_at, updated_at`

// AcceptLead creates the lead and consumes a unit of the user's daily counter in
// one transaction. A (user, post) conflict ends the transaction before the counter
// is touched. The counter upsert only increments while count < limit; when it
// returns no row the lead insert is rolled back.
func (s *Store) AcceptLead(ctx context.Context, lead *models.Lead, claim models.QuotaClaim) (models.AcceptOutcome, error) {
	if claim.Limit <= 0 {
		return models.OutcomeQuotaExceeded, nil
	}

	analysis, err := marshalAnalysis(lead.AIAnalysis)
	if err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("[DB] begin accept lead: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO leads (id, user_id, watch_id, subreddit, post_id, parent_id, type, title, content,
			author, url, status, priority_score, ai_response, ai_analysis, origin, enrichment_state,
			enrichment_attempts, status_changed_at, posted_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (user_id, post_id) DO NOTHING
		RETURNING id`,
		lead.ID, lead.UserID, lead.WatchID, lead.Subreddit, lead.PostID, lead.ParentID, lead.Type,
		lead.Title, lead.Content, lead.Author, lead.URL, lead.Status, lead.PriorityScore,
		lead.AIResponse, analysis, lead.Origin, lead.EnrichmentState, lead.EnrichmentAttempts,
		lead.StatusChangedAt, lead.PostedAt, lead.CreatedAt, lead.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OutcomeDuplicate, nil
	}
	if err != nil {
		return "", classify(err, "insert lead")
	}

	var count int
	err = tx.QueryRow(ctx, `
		INSERT INTO daily_lead_counters (user_id, day, count)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (user_id, day) DO UPDATE
			SET count = daily_lead_counters.count + 1
			WHERE daily_lead_counters.count < $3
		RETURNING count`,
		claim.UserID, claim.Day, claim.Limit,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OutcomeQuotaExceeded, nil
	}
	if err != nil {
		return "", classify(err, "increment daily counter")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", classify(err, "commit accept lead")
	}
	return models.OutcomeCreated, nil
}

func (s *Store) GetLead(ctx context.Context, id string) (models.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	return lead, classify(err, "get lead "+id)
}

func (s *Store) FindLead(ctx context.Context, userID, postID string) (models.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE user_id = $1 AND post_id = $2`, userID, postID)
	lead, err := scanLead(row)
	return lead, classify(err, "find lead "+userID+"/"+postID)
}

// UpdateLeadStatus validates the transition against the row locked for update.
func (s *Store) UpdateLeadStatus(ctx context.Context, id string, next models.LeadStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("[DB] begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.LeadStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		return classify(err, "lock lead "+id)
	}
	status, err := current.Transition(next)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE leads SET status = $2, status_changed_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id, status); err != nil {
		return classify(err, "update lead status "+id)
	}
	return classify(tx.Commit(ctx), "commit lead status "+id)
}

// SaveEnrichment writes the AI fields of a lead that has not been deleted and
// leaves every other column alone.
func (s *Store) SaveEnrichment(ctx context.Context, id string, analysis *models.LeadAnalysis, response *string) error {
	raw, err := marshalAnalysis(analysis)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads
		SET ai_analysis = COALESCE($2, ai_analysis),
			ai_response = COALESCE($3, ai_response),
			enrichment_state = 'done',
			updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'`,
		id, raw, response)
	if err != nil {
		return classify(err, "save enrichment "+id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetLead(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: lead %s is deleted", models.ErrInvalidTransition, id)
	}
	return nil
}

func (s *Store) SetEnrichmentState(ctx context.Context, id string, state models.EnrichmentState, attempts int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads SET enrichment_state = $2, enrichment_attempts = $3, updated_at = NOW() WHERE id = $1`,
		id, state, attempts)
	if err != nil {
		return classify(err, "set enrichment state "+id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lead %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) LeadsPendingEnrichment(ctx context.Context, olderThan time.Time, limit int) ([]models.Lead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE enrichment_state = 'pending' AND status <> 'deleted' AND updated_at < $1
		ORDER BY created_at, id
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, classify(err, "list pending enrichment")
	}
	return collectLeads(rows)
}

func (s *Store) DailyCount(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT count FROM daily_lead_counters WHERE user_id = $1 AND day = $2::date), 0)`,
		userID, day).Scan(&count)
	return count, classify(err, "daily count")
}

func (s *Store) CountLeads(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE user_id = $1`, userID).Scan(&count)
	return count, classify(err, "count leads")
}

func scanLead(row pgx.Row) (models.Lead, error) {
	var (
		l        models.Lead
		analysis []byte
	)
	err := row.Scan(&l.ID, &l.UserID, &l.WatchID, &l.Subreddit, &l.PostID, &l.ParentID, &l.Type,
		&l.Title, &l.Content, &l.Author, &l.URL, &l.Status, &l.PriorityScore, &l.AIResponse, &analysis,
		&l.Origin, &l.EnrichmentState, &l.EnrichmentAttempts, &l.StatusChangedAt, &l.PostedAt,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return models.Lead{}, err
	}
	if len(analysis) > 0 {
		var a models.LeadAnalysis
		if err := json.Unmarshal(analysis, &a); err != nil {
			return models.Lead{}, fmt.Errorf("decode ai_analysis: %w", err)
		}
		l.AIAnalysis = &a
	}
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]models.Lead, error) {
	defer rows.Close()
	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func marshalAnalysis(a *models.LeadAnalysis) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode ai_analysis: %w", err)
	}
	return raw, nil
}
