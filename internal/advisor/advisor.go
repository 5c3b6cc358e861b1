// Package advisor runs the onboarding AI operations: turning a company's own
// description into a business profile and proposing subreddits to watch.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spacesedan/leadscout/internal/ai"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/watch"
)

var ErrNoBusinessProfile = errors.New("user has no business profile")

type AIService interface {
	Invoke(ctx context.Context, req ai.Request) (ai.Response, error)
}

type ProfileStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	SaveBusinessProfile(ctx context.Context, userID string, p models.BusinessProfile) error
}

type Advisor struct {
	ai      AIService
	users   ProfileStore
	timeout time.Duration
}

func New(svc AIService, users ProfileStore, timeout time.Duration) *Advisor {
	return &Advisor{ai: svc, users: users, timeout: timeout}
}

type extractInput struct {
	Text string `json:"text"`
}

type suggestInput struct {
	Business models.BusinessProfile `json:"business"`
	Count    int                    `json:"count"`
	Exclude  []string               `json:"exclude,omitempty"`
}

// ExtractBusinessInfo builds a business profile from text and saves it on the user.
func (a *Advisor) ExtractBusinessInfo(ctx context.Context, userID, text string) (models.BusinessProfile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.BusinessProfile{}, errors.New("[Advisor] empty business description")
	}

	var profile models.BusinessProfile
	if err := a.invoke(ctx, userID, models.OpExtractBusinessInfo, extractInput{Text: text}, &profile); err != nil {
		return models.BusinessProfile{}, err
	}
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Keywords = normalizeKeywords(profile.Keywords)
	if profile.Description == "" {
		profile.Description = text
	}

	if err := a.users.SaveBusinessProfile(ctx, userID, profile); err != nil {
		return models.BusinessProfile{}, fmt.Errorf("[Advisor] save profile for %s: %w", userID, err)
	}
	slog.Info("[Advisor] Business profile extracted",
		slog.String("user_id", userID),
		slog.String("name", profile.Name),
		slog.Int("keywords", len(profile.Keywords)))
	return profile, nil
}

// SuggestSubreddits proposes up to n subreddits for the user's business, leaving
// out names in exclude and names reddit would reject.
func (a *Advisor) SuggestSubreddits(ctx context.Context, userID string, n int, exclude []string) ([]string, error) {
	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("[Advisor] load user %s: %w", userID, err)
	}
	if user.BusinessProfile == nil {
		return nil, ErrNoBusinessProfile
	}

	var out ai.SubredditSuggestions
	input := suggestInput{Business: *user.BusinessProfile, Count: n, Exclude: exclude}
	if err := a.invoke(ctx, userID, models.OpSuggestSubreddits, input, &out); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, name := range exclude {
		seen[strings.ToLower(name)] = true
	}
	var names []string
	for _, raw := range out.Subreddits {
		name, ok := watch.NormalizeSubreddit(raw)
		if !ok || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		names = append(names, name)
		if len(names) == n {
			break
		}
	}
	return names, nil
}

func (a *Advisor) invoke(ctx context.Context, userID string, op models.AIOperation, payload, out any) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	resp, err := a.ai.Invoke(ctx, ai.Request{UserID: userID, Operation: op, Payload: payload})
	if err != nil {
		return fmt.Errorf("[Advisor] %s: %w", op, err)
	}
	if err := ai.Decode(resp.Payload, out); err != nil {
		return fmt.Errorf("[Advisor] %s: %w", op, err)
	}
	return nil
}

func normalizeKeywords(in []string) []string {
	var out []string
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && !slices.Contains(out, kw) {
			out = append(out, kw)
		}
	}
	return out
}
