package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/memstore"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/plans"
	"github.com/spacesedan/leadscout/internal/watch"
)

type fakeExtractor struct {
	calls int
	err   error
	store *memstore.Store
}

func (f *fakeExtractor) ExtractBusinessInfo(ctx context.Context, userID, text string) (models.BusinessProfile, error) {
	f.calls++
	if f.err != nil {
		return models.BusinessProfile{}, f.err
	}
	p := models.BusinessProfile{Name: "Acme", Description: text}
	return p, f.store.SaveBusinessProfile(ctx, userID, p)
}

func setup(t *testing.T) (*Service, *memstore.Store, *watch.Service, *fakeExtractor) {
	t.Helper()
	store := memstore.New()
	table := plans.Table{}
	require.NoError(t, table.Decode(plans.DefaultLimits))
	watches := watch.NewService(store, plans.NewProvider(table, store, plans.FreeTrial))
	extractor := &fakeExtractor{store: store}
	return NewService(store, watches, extractor), store, watches, extractor
}

func TestUpsertMirrorsUserAndExtractsOnce(t *testing.T) {
	svc, store, _, extractor := setup(t)
	ctx := context.Background()
	raw := []byte(`{"type":"identity.upserted","data":{"user_id":"U1","email":"a@acme.io","plan_id":"growth","business_description":"We sell CRM software"}}`)

	require.NoError(t, svc.Dispatch(ctx, raw))
	require.NoError(t, svc.Dispatch(ctx, raw))

	user, err := store.GetUser(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "growth", user.PlanID)
	require.NotNil(t, user.BusinessProfile)
	assert.Equal(t, 1, extractor.calls)
}

func TestExtractionFailureDoesNotFailEvent(t *testing.T) {
	svc, store, _, extractor := setup(t)
	extractor.err = models.ErrEnrichmentBudgetExceeded

	err := svc.IdentityUpserted(context.Background(), Upserted{UserID: "U1", BusinessDescription: "We sell CRM software"})
	require.NoError(t, err)
	_, err = store.GetUser(context.Background(), "U1")
	assert.NoError(t, err)
}

func TestDeleteMarksUserAndPausesWatches(t *testing.T) {
	svc, store, watches, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.IdentityUpserted(ctx, Upserted{UserID: "U1", PlanID: plans.Growth}))
	for _, sub := range []string{"startups", "saas"} {
		require.NoError(t, watches.Create(ctx, &models.Watch{
			UserID:       "U1",
			Subreddit:    sub,
			ContentTypes: []models.ContentType{models.ContentPost},
		}))
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	raw := []byte(`{"type":"identity.deleted","occurred_at":"2026-03-01T09:00:00Z","data":{"user_id":"U1"}}`)
	require.NoError(t, svc.Dispatch(ctx, raw))

	user, err := store.GetUser(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, user.DeletedAt)
	assert.True(t, user.DeletedAt.Equal(at))

	active, err := store.CountActiveWatches(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestDeleteOfUnknownUserStillPauses(t *testing.T) {
	svc, _, _, _ := setup(t)
	assert.NoError(t, svc.IdentityDeleted(context.Background(), Deleted{UserID: "ghost"}, time.Now()))
}

func TestMalformedEventsArePermanent(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	for _, raw := range []string{
		`not json`,
		`{"type":"identity.renamed","data":{}}`,
		`{"type":"identity.upserted","data":{"email":"a@acme.io"}}`,
		`{"type":"identity.upserted","data":{"user_id":"U1","email":"nope"}}`,
	} {
		err := svc.Dispatch(ctx, []byte(raw))
		assert.True(t, errors.Is(err, ErrMalformedEvent), raw)
	}
}
