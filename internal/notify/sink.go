package notify

import (
	"context"
	"log/slog"

	"github.com/spacesedan/leadscout/internal/models"
)

// LogSink writes notifications to the log instead of a delivery channel.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, n models.Notification) error {
	slog.Info("[Notify] "+n.Title,
		slog.String("user_id", n.UserID),
		slog.String("kind", string(n.Kind)),
		slog.String("lead_id", n.LeadID),
		slog.String("message", n.Message))
	return nil
}
