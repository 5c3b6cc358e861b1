package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spacesedan/leadscout/internal/models"
)

type UserStore interface {
	UpsertUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	MarkUserDeleted(ctx context.Context, id string, at time.Time) error
}

type WatchPauser interface {
	PauseAllForUser(ctx context.Context, userID string) (int, error)
}

type ProfileExtractor interface {
	ExtractBusinessInfo(ctx context.Context, userID, text string) (models.BusinessProfile, error)
}

type Service struct {
	users     UserStore
	watches   WatchPauser
	extractor ProfileExtractor
	validate  *validator.Validate
}

func NewService(users UserStore, watches WatchPauser, extractor ProfileExtractor) *Service {
	return &Service{users: users, watches: watches, extractor: extractor, validate: validator.New()}
}

// Dispatch applies one raw event.
func (s *Service) Dispatch(ctx context.Context, raw []byte) error {
	return Dispatch(ctx, s, raw)
}

// IdentityUpserted mirrors the user. A first business description triggers
// profile extraction; a failed extraction is logged and does not fail the event.
func (s *Service) IdentityUpserted(ctx context.Context, e Upserted) error {
	if err := s.validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	existing, err := s.users.GetUser(ctx, e.UserID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("[Identity] load user %s: %w", e.UserID, err)
	}

	if err := s.users.UpsertUser(ctx, models.User{ID: e.UserID, Email: e.Email, Name: e.Name, PlanID: e.PlanID}); err != nil {
		return fmt.Errorf("[Identity] upsert user %s: %w", e.UserID, err)
	}
	slog.Info("[Identity] User upserted", slog.String("user_id", e.UserID), slog.String("plan_id", e.PlanID))

	if s.extractor == nil || e.BusinessDescription == "" || existing.BusinessProfile != nil {
		return nil
	}
	if _, err := s.extractor.ExtractBusinessInfo(ctx, e.UserID, e.BusinessDescription); err != nil {
		slog.Warn("[Identity] Business profile extraction failed",
			slog.String("user_id", e.UserID),
			slog.String("error", err.Error()))
	}
	return nil
}

// IdentityDeleted marks the user deleted and stops polling on their behalf.
func (s *Service) IdentityDeleted(ctx context.Context, e Deleted, at time.Time) error {
	if err := s.validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if err := s.users.MarkUserDeleted(ctx, e.UserID, at); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("[Identity] delete user %s: %w", e.UserID, err)
		}
	}
	paused, err := s.watches.PauseAllForUser(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("[Identity] pause watches for %s: %w", e.UserID, err)
	}
	slog.Info("[Identity] User deleted",
		slog.String("user_id", e.UserID),
		slog.Int("watches_paused", paused))
	return nil
}
