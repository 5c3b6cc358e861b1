package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/enrichment"
	"github.com/spacesedan/leadscout/internal/gate"
	"github.com/spacesedan/leadscout/internal/memstore"
	"github.com/spacesedan/leadscout/internal/models"
	"github.com/spacesedan/leadscout/internal/monitoring"
	"github.com/spacesedan/leadscout/internal/notify"
	"github.com/spacesedan/leadscout/internal/plans"
	"github.com/spacesedan/leadscout/internal/poller"
	"github.com/spacesedan/leadscout/internal/quota"
	"github.com/spacesedan/leadscout/internal/scoring"
	"github.com/spacesedan/leadscout/internal/sentiment"
	"github.com/spacesedan/leadscout/internal/watch"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type captureReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *captureReporter) Report(_ context.Context, err error, _ monitoring.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

type mapSeenCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (c *mapSeenCache) IsSeen(_ context.Context, userID, postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[userID+"/"+postID]
}

func (c *mapSeenCache) MarkSeen(_ context.Context, userID, postID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[userID+"/"+postID] = true
	return nil
}

// flakyGate fails submissions for the listed posts and delegates the rest.
type flakyGate struct {
	next  Submitter
	fail  map[string]error
	calls int
	mu    sync.Mutex
}

func (g *flakyGate) Submit(ctx context.Context, lead *models.Lead, claim models.QuotaClaim) (models.AcceptOutcome, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if err, ok := g.fail[lead.PostID]; ok {
		return "", err
	}
	return g.next.Submit(ctx, lead, claim)
}

type fixture struct {
	store     *memstore.Store
	queue     *enrichment.MemoryQueue
	reporter  *captureReporter
	processor *Processor
	gate      *flakyGate
}

func newFixture(t *testing.T, planID string) *fixture {
	t.Helper()
	store := memstore.New().WithClock(clock)
	require.NoError(t, store.UpsertUser(context.Background(), models.User{ID: "U1", PlanID: planID}))

	table := plans.Table{}
	require.NoError(t, table.Decode(plans.DefaultLimits))
	enforcer := quota.NewEnforcer(plans.NewProvider(table, store, plans.FreeTrial), store)

	fg := &flakyGate{next: gate.New(store).WithClock(clock), fail: map[string]error{}}
	queue := enrichment.NewMemoryQueue(64)
	reporter := &captureReporter{}
	dispatcher := notify.NewDispatcher(store, notify.LogSink{}).WithClock(clock)
	p := NewProcessor(enforcer, fg, dispatcher, queue, reporter).WithClock(clock)
	return &fixture{store: store, queue: queue, reporter: reporter, processor: p, gate: fg}
}

func saasWatch() models.Watch {
	return models.Watch{
		ID:              "W1",
		UserID:          "U1",
		Subreddit:       "startups",
		Keywords:        []string{"b2b", "saas"},
		ExcludeKeywords: []string{"hiring"},
		ContentTypes:    []models.ContentType{models.ContentPost, models.ContentComment},
		Status:          models.WatchActive,
	}
}

func post(id, content string) models.ContentItem {
	return models.ContentItem{
		PostID:          id,
		Type:            models.ContentPost,
		Subreddit:       "startups",
		Title:           "Tool recommendations",
		Content:         content,
		Author:          "founder42",
		URL:             "https://reddit.com/r/startups/comments/" + id,
		SubscriberCount: 250_000,
		CreatedAt:       now.Add(-20 * time.Minute),
	}
}

func TestSimultaneousPollsCreateOneLeadAndOneNotification(t *testing.T) {
	f := newFixture(t, plans.Growth)
	w := saasWatch()
	item := post("abc123", "Any good B2B SaaS for invoicing?")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.processor.HandleBatch(context.Background(), w, []models.ContentItem{item}))
		}()
	}
	wg.Wait()

	n, err := f.store.CountLeads(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.store.Notifications("U1"), 1)
	assert.Equal(t, 1, f.queue.Len())
}

func TestSixthCandidateExceedsFreeTrialQuota(t *testing.T) {
	f := newFixture(t, plans.FreeTrial)
	w := saasWatch()

	var results []Result
	for i := 1; i <= 6; i++ {
		results = append(results, f.processor.Process(context.Background(), w, post(fmt.Sprintf("p%d", i), "Looking for a SaaS CRM")))
	}

	for _, r := range results[:5] {
		assert.Equal(t, OutcomeAccepted, r.Outcome)
	}
	assert.Equal(t, OutcomeQuotaExceeded, results[5].Outcome)
	assert.ErrorIs(t, results[5].Err, models.ErrQuotaExceeded)

	_, err := f.store.FindLead(context.Background(), "U1", "p6")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 5, f.queue.Len(), "no enrichment for the discarded candidate")
	assert.Len(t, f.store.Notifications("U1"), 5)
	assert.Empty(t, f.reporter.errs)
}

func TestExcludeKeywordWins(t *testing.T) {
	f := newFixture(t, plans.Growth)
	res := f.processor.Process(context.Background(), saasWatch(), post("h1", "Looking to hire a SaaS engineer"))

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Zero(t, f.gate.calls)
	assert.Zero(t, f.queue.Len())
}

func TestAcceptedLeadCarriesDeterministicScore(t *testing.T) {
	f := newFixture(t, plans.Growth)
	item := post("s1", "We need a b2b saas for onboarding, this is so frustrating")
	res := f.processor.Process(context.Background(), saasWatch(), item)
	require.Equal(t, OutcomeAccepted, res.Outcome)

	want := scoring.Score(scoring.Signals{
		MatchStrength:   1,
		PostedAt:        item.CreatedAt,
		Now:             now,
		SubscriberCount: item.SubscriberCount,
		Type:            item.Type,
		Origin:          models.OriginSystem,
		Sentiment:       sentiment.Compound(item.Title + "\n\n" + item.Content),
	})
	lead, err := f.store.GetLead(context.Background(), res.LeadID)
	require.NoError(t, err)
	assert.Equal(t, want, lead.PriorityScore)
	assert.Equal(t, res.Score, lead.PriorityScore)
	assert.Equal(t, "W1", lead.WatchID)
	assert.Equal(t, models.OriginSystem, lead.Origin)
	assert.Equal(t, models.EnrichmentPending, lead.EnrichmentState)
}

func TestReplaySkipsMatcherButIsDeduplicated(t *testing.T) {
	f := newFixture(t, plans.Growth)
	item := post("r1", "Nothing to do with the keywords")

	first := f.processor.Replay(context.Background(), "U1", "", item)
	second := f.processor.Replay(context.Background(), "U1", "", item)

	require.Equal(t, OutcomeAccepted, first.Outcome)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	lead, err := f.store.GetLead(context.Background(), first.LeadID)
	require.NoError(t, err)
	assert.Equal(t, models.OriginAdmin, lead.Origin)
	assert.Len(t, f.store.Notifications("U1"), 1)
}

func TestSeenCacheShortCircuitsGate(t *testing.T) {
	f := newFixture(t, plans.Growth)
	f.processor.WithSeenCache(&mapSeenCache{seen: map[string]bool{}})
	item := post("c1", "b2b saas wanted")

	assert.Equal(t, OutcomeAccepted, f.processor.Process(context.Background(), saasWatch(), item).Outcome)
	assert.Equal(t, OutcomeDuplicate, f.processor.Process(context.Background(), saasWatch(), item).Outcome)
	assert.Equal(t, 1, f.gate.calls)
}

func TestStorageFailureDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, plans.Growth)
	f.gate.fail["bad"] = errors.New("connection reset")
	items := []models.ContentItem{
		post("ok1", "b2b saas wanted"),
		post("bad", "b2b saas wanted"),
		post("ok2", "b2b saas wanted"),
	}

	err := f.processor.HandleBatch(context.Background(), saasWatch(), items)
	assert.ErrorIs(t, err, ErrBatchIncomplete)

	n, cerr := f.store.CountLeads(context.Background(), "U1")
	require.NoError(t, cerr)
	assert.Equal(t, 2, n)
	require.Len(t, f.reporter.errs, 1)
}

func TestPersistenceConflictIsFatalOnlyForItem(t *testing.T) {
	f := newFixture(t, plans.Growth)
	f.gate.fail["bad"] = fmt.Errorf("[Gate] accept lead: %w", models.ErrPersistenceConflict)
	items := []models.ContentItem{post("bad", "b2b saas wanted"), post("ok", "b2b saas wanted")}

	require.NoError(t, f.processor.HandleBatch(context.Background(), saasWatch(), items))
	require.Len(t, f.reporter.errs, 1)
	assert.ErrorIs(t, f.reporter.errs[0], models.ErrPersistenceConflict)
}

type staticSource []models.ContentItem

func (s staticSource) FetchSince(context.Context, string, string, time.Time, []models.ContentType) ([]models.ContentItem, error) {
	return s, nil
}

func TestRejectedRowStillAdvancesCheckpoint(t *testing.T) {
	f := newFixture(t, plans.Growth)
	ctx := context.Background()
	f.gate.fail["bad"] = fmt.Errorf("%w: insert lead: invalid byte sequence (sqlstate 22021)", models.ErrPersistenceConflict)

	w := saasWatch()
	w.LastCheckpoint = now.Add(-time.Hour)
	require.NoError(t, f.store.CreateWatch(ctx, &w))

	bad := post("bad", "b2b saas wanted")
	bad.CreatedAt = now.Add(-30 * time.Minute)
	ok := post("ok", "b2b saas wanted")
	ok.CreatedAt = now.Add(-10 * time.Minute)

	p := poller.New(watch.NewRegistry(f.store), staticSource{bad, ok}, f.processor, f.store,
		poller.NewMemoryCooldowns(), poller.Config{MaxConcurrency: 1, MaxAttempts: 1, RatePerMinute: 6000, Burst: 10}).
		WithClock(clock)

	report, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[poller.OutcomePolled])

	stored, err := f.store.GetWatch(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastCheckpoint.Equal(ok.CreatedAt), "checkpoint %s", stored.LastCheckpoint)

	_, err = f.store.FindLead(ctx, "U1", "ok")
	assert.NoError(t, err)
}
