package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Fields identify the item an error belongs to so it can be replayed.
type Fields struct {
	Component string
	UserID    string
	Subreddit string
	PostID    string
	LeadID    string
}

func (f Fields) attrs() []any {
	attrs := []any{slog.String("component", f.Component)}
	for _, kv := range [][2]string{
		{"user_id", f.UserID},
		{"subreddit", f.Subreddit},
		{"post_id", f.PostID},
		{"lead_id", f.LeadID},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	return attrs
}

// Reporter is the operational log for fatal and unexpected per-item errors.
type Reporter interface {
	Report(ctx context.Context, err error, f Fields)
}

type SlogReporter struct{}

func (SlogReporter) Report(_ context.Context, err error, f Fields) {
	slog.Error("[Ops] "+err.Error(), f.attrs()...)
}

type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter initialises the Sentry client for dsn.
func NewSentryReporter(dsn, env string) (*SentryReporter, error) {
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Environment: env}); err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.CurrentHub()}, nil
}

func (r *SentryReporter) Report(_ context.Context, err error, f Fields) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", f.Component)
		if f.UserID != "" {
			scope.SetUser(sentry.User{ID: f.UserID})
		}
		scope.SetTags(map[string]string{
			"subreddit": f.Subreddit,
			"post_id":   f.PostID,
			"lead_id":   f.LeadID,
		})
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush() {
	r.hub.Flush(2 * time.Second)
}

// Multi fans a report out to several reporters.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, err error, f Fields) {
	for _, r := range m {
		r.Report(ctx, err, f)
	}
}
