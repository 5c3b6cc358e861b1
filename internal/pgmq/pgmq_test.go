package pgmq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/clients"
	"github.com/spacesedan/leadscout/internal/enrichment"
)

func TestSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 0, seconds(-time.Second))
	assert.Equal(t, 0, seconds(0))
	assert.Equal(t, 1, seconds(time.Millisecond))
	assert.Equal(t, 1, seconds(time.Second))
	assert.Equal(t, 2, seconds(1500*time.Millisecond))
	assert.Equal(t, 300, seconds(5*time.Minute))
}

// Requires a Postgres with the pgmq extension installed.
func TestEnrichmentQueueRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_PGMQ_URL")
	if dsn == "" {
		t.Skip("TEST_PGMQ_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := clients.NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	client := New(pool)
	name := "enrich_test_" + uuid.NewString()[:8]
	require.NoError(t, client.Create(ctx, name))

	queue := NewEnrichmentQueue(client, name, 2*time.Second)
	require.NoError(t, queue.Publish(ctx, enrichment.Job{LeadID: "lead-1", UserID: "u1"}))

	d, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lead-1", d.Job().LeadID)
	assert.Equal(t, 1, d.Job().Attempt)

	require.NoError(t, d.Requeue(ctx, 0))

	d, err = queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Job().Attempt)
	require.NoError(t, d.Ack(ctx))
}
