package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/config"
	"github.com/spacesedan/leadscout/internal/enrichment"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/pipeline"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("COOLDOWN_BACKEND", "memory")
	t.Setenv("NOTIFY_SINK", "log")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestMemoryAppAcceptsAndQueuesLead(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Repo.UpsertUser(ctx, models.User{ID: "u1", PlanID: "starter"}))
	w := models.Watch{
		ID:           "w1",
		UserID:       "u1",
		Subreddit:    "smallbusiness",
		Keywords:     []string{"crm"},
		ContentTypes: []models.ContentType{models.ContentPost},
	}
	require.NoError(t, app.WatchService().Create(ctx, &w))

	processor, err := app.Processor(ctx)
	require.NoError(t, err)

	res := processor.Process(ctx, w, models.ContentItem{
		PostID:    "t3_abc",
		Type:      models.ContentPost,
		Subreddit: "smallbusiness",
		Title:     "Which CRM do you recommend?",
		Content:   "Looking for a simple crm for a team of five",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, res.Err)
	assert.Equal(t, pipeline.OutcomeAccepted, res.Outcome)

	queue, err := app.EnrichmentQueue(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, queue.(*enrichment.MemoryQueue).Len())

	_, err = app.Poller(ctx, processor)
	require.NoError(t, err)
}

func TestPgmqNeedsPostgres(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.QueueBackend = "pgmq"
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.EnrichmentQueue(context.Background(), true)
	assert.Error(t, err)
}
