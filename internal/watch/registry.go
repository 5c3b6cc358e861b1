package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spacesedan/leadscout/internal/models"
)

var ErrSubredditLimit = errors.New("active subreddit limit reached")

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{1,20}$`)

// NormalizeSubreddit strips whitespace and an r/ prefix. It reports false for
// names reddit would not accept.
func NormalizeSubreddit(name string) (string, bool) {
	name = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(name), "/"), "r/")
	return name, subredditPattern.MatchString(name)
}

type Store interface {
	ListActiveWatches(ctx context.Context) ([]models.Watch, error)
	ListWatchesByUser(ctx context.Context, userID string) ([]models.Watch, error)
	GetWatch(ctx context.Context, id string) (models.Watch, error)
	CreateWatch(ctx context.Context, w *models.Watch) error
	CountActiveWatches(ctx context.Context, userID string) (int, error)
	UpdateWatchStatus(ctx context.Context, id string, next models.WatchStatus) error
}

type LimitsProvider interface {
	LimitsFor(ctx context.Context, userID string) (models.PlanLimits, error)
}

// Registry is the read-only view the poller iterates.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

func (r *Registry) ListActive(ctx context.Context) ([]models.Watch, error) {
	watches, err := r.store.ListActiveWatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("[WatchRegistry] list active: %w", err)
	}
	return watches, nil
}

// Service applies user-driven watch changes within the plan's subreddit allowance.
type Service struct {
	store    Store
	limits   LimitsProvider
	validate *validator.Validate
}

func NewService(store Store, limits LimitsProvider) *Service {
	v := validator.New()
	_ = v.RegisterValidation("subreddit", func(fl validator.FieldLevel) bool {
		return subredditPattern.MatchString(fl.Field().String())
	})
	return &Service{store: store, limits: limits, validate: v}
}

// Create validates w and stores it. Active watches count against maxSubreddits.
func (s *Service) Create(ctx context.Context, w *models.Watch) error {
	w.Subreddit, _ = NormalizeSubreddit(w.Subreddit)
	if w.Status == "" {
		w.Status = models.WatchActive
	}
	if w.SourceAccount == "" {
		w.SourceAccount = models.DefaultSourceAccount
	}
	if w.LastCheckpoint.IsZero() {
		w.LastCheckpoint = time.Now().UTC().Add(-24 * time.Hour)
	}
	if err := s.validate.Struct(w); err != nil {
		return fmt.Errorf("[WatchService] invalid watch: %w", err)
	}
	if w.Status == models.WatchActive {
		if err := s.checkAllowance(ctx, w.UserID); err != nil {
			return err
		}
	}
	if err := s.store.CreateWatch(ctx, w); err != nil {
		return fmt.Errorf("[WatchService] create: %w", err)
	}
	slog.Info("[WatchService] Watch created",
		slog.String("watch_id", w.ID),
		slog.String("user_id", w.UserID),
		slog.String("subreddit", w.Subreddit))
	return nil
}

func (s *Service) Pause(ctx context.Context, id string) error {
	return s.store.UpdateWatchStatus(ctx, id, models.WatchPaused)
}

// Resume reactivates a paused watch if the plan still allows another one.
func (s *Service) Resume(ctx context.Context, id string) error {
	w, err := s.store.GetWatch(ctx, id)
	if err != nil {
		return err
	}
	if _, err := w.Status.Transition(models.WatchActive); err != nil {
		return err
	}
	if err := s.checkAllowance(ctx, w.UserID); err != nil {
		return err
	}
	return s.store.UpdateWatchStatus(ctx, id, models.WatchActive)
}

// PauseAllForUser pauses every active watch the user owns and returns how many
// were paused.
func (s *Service) PauseAllForUser(ctx context.Context, userID string) (int, error) {
	watches, err := s.store.ListWatchesByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	paused := 0
	for _, w := range watches {
		if w.Status != models.WatchActive {
			continue
		}
		if err := s.store.UpdateWatchStatus(ctx, w.ID, models.WatchPaused); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				continue
			}
			return paused, err
		}
		paused++
	}
	return paused, nil
}

func (s *Service) checkAllowance(ctx context.Context, userID string) error {
	limits, err := s.limits.LimitsFor(ctx, userID)
	if err != nil {
		return err
	}
	active, err := s.store.CountActiveWatches(ctx, userID)
	if err != nil {
		return err
	}
	if active >= limits.MaxSubreddits {
		return fmt.Errorf("%w: %d of %d in use", ErrSubredditLimit, active, limits.MaxSubreddits)
	}
	return nil
}
