package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spacesedan/leadscout/internal/models"
)

const watchColumns = `id, user_id, subreddit, keywords, exclude_keywords, content_types, status,
	source_account, last_checkpoint, created_at, updated_at`

func (s *Store) CreateWatch(ctx context.Context, w *models.Watch) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.SourceAccount == "" {
		w.SourceAccount = models.DefaultSourceAccount
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO watches (id, user_id, subreddit, keywords, exclude_keywords, content_types, status,
			source_account, last_checkpoint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		w.ID, w.UserID, w.Subreddit, nonNil(w.Keywords), nonNil(w.ExcludeKeywords), contentTypes(w.ContentTypes),
		w.Status, w.SourceAccount, w.LastCheckpoint,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	return classify(err, "create watch")
}

func (s *Store) GetWatch(ctx context.Context, id string) (models.Watch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = $1`, id)
	if err != nil {
		return models.Watch{}, classify(err, "get watch "+id)
	}
	watches, err := collectWatches(rows)
	if err != nil {
		return models.Watch{}, err
	}
	if len(watches) == 0 {
		return models.Watch{}, fmt.Errorf("watch %s: %w", id, models.ErrNotFound)
	}
	return watches[0], nil
}

func (s *Store) ListActiveWatches(ctx context.Context) ([]models.Watch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+watchColumns+` FROM watches WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, classify(err, "list active watches")
	}
	return collectWatches(rows)
}

func (s *Store) ListWatchesByUser(ctx context.Context, userID string) ([]models.Watch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+watchColumns+` FROM watches WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, classify(err, "list watches for user")
	}
	return collectWatches(rows)
}

func (s *Store) CountActiveWatches(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM watches WHERE user_id = $1 AND status = 'active'`, userID).Scan(&n)
	return n, classify(err, "count active watches")
}

func (s *Store) UpdateWatchStatus(ctx context.Context, id string, next models.WatchStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("[DB] begin watch status: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.WatchStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM watches WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		return classify(err, "lock watch "+id)
	}
	status, err := current.Transition(next)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE watches SET status = $2, updated_at = NOW() WHERE id = $1`, id, status); err != nil {
		return classify(err, "update watch status "+id)
	}
	return classify(tx.Commit(ctx), "commit watch status "+id)
}

// AdvanceCheckpoint never moves a checkpoint backwards.
func (s *Store) AdvanceCheckpoint(ctx context.Context, watchID string, to time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE watches SET last_checkpoint = GREATEST(last_checkpoint, $2), updated_at = NOW()
		WHERE id = $1`, watchID, to)
	return classify(err, "advance checkpoint "+watchID)
}

func collectWatches(rows pgx.Rows) ([]models.Watch, error) {
	defer rows.Close()
	var watches []models.Watch
	for rows.Next() {
		var (
			w     models.Watch
			types []string
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.Subreddit, &w.Keywords, &w.ExcludeKeywords, &types,
			&w.Status, &w.SourceAccount, &w.LastCheckpoint, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		for _, t := range types {
			w.ContentTypes = append(w.ContentTypes, models.ContentType(t))
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

func contentTypes(types []models.ContentType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
