package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/clients"
	"github.com/spacesedan/leadscout/internal/models"
)

// newTestStore connects to TEST_DATABASE_URL and applies the schema. Tests that
// need it are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := clients.NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func testLead(userID, postID string) *models.Lead {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Lead{
		ID:              uuid.NewString(),
		UserID:          userID,
		Subreddit:       "startups",
		PostID:          postID,
		Type:            models.ContentPost,
		Content:         "any recommendations for a crm?",
		Status:          models.LeadNew,
		PriorityScore:   64,
		Origin:          models.OriginSystem,
		EnrichmentState: models.EnrichmentPending,
		StatusChangedAt: now,
		PostedAt:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPostgresAcceptLeadIsIdempotentUnderContention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	claim := models.QuotaClaim{UserID: userID, Day: time.Now().UTC().Format("2006-01-02"), Limit: 5}

	var wg sync.WaitGroup
	outcomes := make([]models.AcceptOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := store.AcceptLead(ctx, testLead(userID, "t3_same"), claim)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	created := 0
	for _, o := range outcomes {
		if o == models.OutcomeCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)

	count, err := store.DailyCount(ctx, userID, claim.Day)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgresAcceptLeadStopsAtLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	claim := models.QuotaClaim{UserID: userID, Day: time.Now().UTC().Format("2006-01-02"), Limit: 2}

	for _, post := range []string{"t3_a", "t3_b"} {
		out, err := store.AcceptLead(ctx, testLead(userID, post), claim)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeCreated, out)
	}

	out, err := store.AcceptLead(ctx, testLead(userID, "t3_c"), claim)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeQuotaExceeded, out)

	_, err = store.FindLead(ctx, userID, "t3_c")
	assert.ErrorIs(t, err, models.ErrNotFound)

	count, err := store.CountLeads(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPostgresNotificationUniquePerKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	lead := testLead("user-"+uuid.NewString(), "t3_n")
	_, err := store.AcceptLead(ctx, lead, models.QuotaClaim{UserID: lead.UserID, Day: time.Now().UTC().Format("2006-01-02"), Limit: 5})
	require.NoError(t, err)

	n := func() *models.Notification {
		return &models.Notification{
			ID:      uuid.NewString(),
			UserID:  lead.UserID,
			Type:    models.NotificationLead,
			Kind:    models.KindLeadAccepted,
			LeadID:  lead.ID,
			Title:   "New lead",
			Message: "r/startups",
		}
	}
	created, err := store.CreateNotification(ctx, n())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateNotification(ctx, n())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostgresLeadStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	lead := testLead("user-"+uuid.NewString(), "t3_s")
	_, err := store.AcceptLead(ctx, lead, models.QuotaClaim{UserID: lead.UserID, Day: time.Now().UTC().Format("2006-01-02"), Limit: 5})
	require.NoError(t, err)

	require.NoError(t, store.UpdateLeadStatus(ctx, lead.ID, models.LeadDeleted))
	err = store.UpdateLeadStatus(ctx, lead.ID, models.LeadNew)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestPostgresRejectedContentIsAConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	lead := testLead("user-"+uuid.NewString(), "t3_nul")
	lead.Content = "broken \x00 body"

	_, err := store.AcceptLead(ctx, lead, models.QuotaClaim{UserID: lead.UserID, Day: time.Now().UTC().Format("2006-01-02"), Limit: 5})
	assert.ErrorIs(t, err, models.ErrPersistenceConflict)
}
