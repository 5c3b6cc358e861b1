package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spacesedan/leadscout/internal/models"
)

// CreateNotification inserts n unless a notification of the same kind already
// exists for its lead. It reports whether a row was written.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return false, fmt.Errorf("encode notification payload: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, kind, lead_id, title, message, read, payload)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		ON CONFLICT (lead_id, kind) WHERE lead_id IS NOT NULL DO NOTHING
		RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Kind, n.LeadID, n.Title, n.Message, n.Read, payload,
	).Scan(&n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, "create notification")
	}
	return true, nil
}

// LeadsMissingNotification returns leads created since the given time that have no
// lead_accepted notification.
func (s *Store) LeadsMissingNotification(ctx context.Context, since time.Time, limit int) ([]models.Lead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads l
		WHERE l.created_at >= $1
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n WHERE n.lead_id = l.id AND n.kind = $2
		  )
		ORDER BY l.created_at, l.id
		LIMIT $3`, since, models.KindLeadAccepted, limit)
	if err != nil {
		return nil, classify(err, "list leads missing notification")
	}
	return collectLeads(rows)
}
