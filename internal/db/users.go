package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spacesedan/leadscout/internal/models"
)

// UpsertUser mirrors an identity record. Upserting a previously deleted user
// restores it.
func (s *Store) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, plan_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET email = EXCLUDED.email,
				name = EXCLUDED.name,
				plan_id = EXCLUDED.plan_id,
				deleted_at = NULL,
				updated_at = NOW()`,
		u.ID, u.Email, u.Name, u.PlanID)
	return classify(err, "upsert user "+u.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	var (
		u       models.User
		profile []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, plan_id, business_profile, deleted_at, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.PlanID, &profile, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, classify(err, "get user "+id)
	}
	if len(profile) > 0 {
		var p models.BusinessProfile
		if err := json.Unmarshal(profile, &p); err != nil {
			return models.User{}, fmt.Errorf("decode business profile: %w", err)
		}
		u.BusinessProfile = &p
	}
	return u, nil
}

func (s *Store) MarkUserDeleted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET deleted_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return classify(err, "delete user "+id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveBusinessProfile(ctx context.Context, userID string, p models.BusinessProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode business profile: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET business_profile = $2, updated_at = NOW() WHERE id = $1`, userID, raw)
	if err != nil {
		return classify(err, "save business profile "+userID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

func (s *Store) PlanIDFor(ctx context.Context, userID string) (string, error) {
	var planID string
	err := s.pool.QueryRow(ctx, `SELECT plan_id FROM users WHERE id = $1`, userID).Scan(&planID)
	return planID, classify(err, "plan for user "+userID)
}
