// Package memstore keeps every repository in process memory. It offers the same
// atomicity as the Postgres store (one mutex guards all state) and backs the
// unit tests and STORAGE_BACKEND=memory.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/leadscout/internal/models"
)

type leadKey struct{ userID, postID string }

type counterKey struct{ userID, day string }

type notificationKey struct {
	leadID string
	kind   models.NotificationKind
}

type Store struct {
	mu sync.Mutex

	watches       map[string]models.Watch
	leads         map[string]models.Lead
	leadIndex     map[leadKey]string
	counters      map[counterKey]int
	notifications []models.Notification
	notified      map[notificationKey]struct{}
	usage         []models.AIUsageRecord
	users         map[string]models.User

	now func() time.Time
}

func New() *Store {
	return &Store{
		watches:   map[string]models.Watch{},
		leads:     map[string]models.Lead{},
		leadIndex: map[leadKey]string{},
		counters:  map[counterKey]int{},
		notified:  map[notificationKey]struct{}{},
		users:     map[string]models.User{},
		now:       time.Now,
	}
}

// WithClock replaces the store's clock; used by tests that control time.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Watches

func (s *Store) CreateWatch(_ context.Context, w *models.Watch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	for _, existing := range s.watches {
		if existing.UserID == w.UserID && existing.Subreddit == w.Subreddit {
			return fmt.Errorf("%w: watch for r/%s already exists", models.ErrPersistenceConflict, w.Subreddit)
		}
	}
	now := s.now()
	w.CreatedAt, w.UpdatedAt = now, now
	s.watches[w.ID] = cloneWatch(*w)
	return nil
}

func (s *Store) GetWatch(_ context.Context, id string) (models.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[id]
	if !ok {
		return models.Watch{}, fmt.Errorf("watch %s: %w", id, models.ErrNotFound)
	}
	return cloneWatch(w), nil
}

func (s *Store) ListActiveWatches(_ context.Context) ([]models.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Watch
	for _, w := range s.watches {
		if w.Status == models.WatchActive {
			out = append(out, cloneWatch(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListWatchesByUser(_ context.Context, userID string) ([]models.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Watch
	for _, w := range s.watches {
		if w.UserID == userID {
			out = append(out, cloneWatch(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountActiveWatches(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.watches {
		if w.UserID == userID && w.Status == models.WatchActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateWatchStatus(_ context.Context, id string, next models.WatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[id]
	if !ok {
		return fmt.Errorf("watch %s: %w", id, models.ErrNotFound)
	}
	status, err := w.Status.Transition(next)
	if err != nil {
		return err
	}
	w.Status = status
	w.UpdatedAt = s.now()
	s.watches[id] = w
	return nil
}

// AdvanceCheckpoint moves the checkpoint forward only.
func (s *Store) AdvanceCheckpoint(_ context.Context, watchID string, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[watchID]
	if !ok {
		return fmt.Errorf("watch %s: %w", watchID, models.ErrNotFound)
	}
	if to.After(w.LastCheckpoint) {
		w.LastCheckpoint = to
		w.UpdatedAt = s.now()
		s.watches[watchID] = w
	}
	return nil
}

// Leads

// AcceptLead inserts the lead unless (user, post) exists, then consumes one unit of
// the daily counter. Nothing is written when either step refuses.
func (s *Store) AcceptLead(_ context.Context, lead *models.Lead, claim models.QuotaClaim) (models.AcceptOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := leadKey{lead.UserID, lead.PostID}
	if _, exists := s.leadIndex[key]; exists {
		return models.OutcomeDuplicate, nil
	}
	ck := counterKey{claim.UserID, claim.Day}
	if s.counters[ck] >= claim.Limit {
		return models.OutcomeQuotaExceeded, nil
	}
	if _, exists := s.leads[lead.ID]; exists {
		return "", fmt.Errorf("%w: lead id %s already used", models.ErrPersistenceConflict, lead.ID)
	}

	s.counters[ck]++
	s.leads[lead.ID] = cloneLead(*lead)
	s.leadIndex[key] = lead.ID
	return models.OutcomeCreated, nil
}

func (s *Store) GetLead(_ context.Context, id string) (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return models.Lead{}, fmt.Errorf("lead %s: %w", id, models.ErrNotFound)
	}
	return cloneLead(l), nil
}

func (s *Store) FindLead(_ context.Context, userID, postID string) (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.leadIndex[leadKey{userID, postID}]
	if !ok {
		return models.Lead{}, fmt.Errorf("lead %s/%s: %w", userID, postID, models.ErrNotFound)
	}
	return cloneLead(s.leads[id]), nil
}

func (s *Store) CountLeads(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.leads {
		if l.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateLeadStatus(_ context.Context, id string, next models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s: %w", id, models.ErrNotFound)
	}
	if err := l.ChangeStatus(next, s.now()); err != nil {
		return err
	}
	s.leads[id] = l
	return nil
}

// SaveEnrichment writes only the AI fields, and only while the lead is not deleted.
func (s *Store) SaveEnrichment(_ context.Context, id string, analysis *models.LeadAnalysis, response *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s: %w", id, models.ErrNotFound)
	}
	if l.Status == models.LeadDeleted {
		return fmt.Errorf("%w: lead %s is deleted", models.ErrInvalidTransition, id)
	}
	if analysis != nil {
		a := *analysis
		a.PainPoints = slices.Clone(analysis.PainPoints)
		l.AIAnalysis = &a
	}
	if response != nil {
		r := *response
		l.AIResponse = &r
	}
	l.EnrichmentState = models.EnrichmentDone
	l.UpdatedAt = s.now()
	s.leads[id] = l
	return nil
}

func (s *Store) SetEnrichmentState(_ context.Context, id string, state models.EnrichmentState, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead %s: %w", id, models.ErrNotFound)
	}
	l.EnrichmentState = state
	l.EnrichmentAttempts = attempts
	l.UpdatedAt = s.now()
	s.leads[id] = l
	return nil
}

func (s *Store) LeadsPendingEnrichment(_ context.Context, olderThan time.Time, limit int) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if l.EnrichmentState == models.EnrichmentPending && l.Status != models.LeadDeleted && l.UpdatedAt.Before(olderThan) {
			out = append(out, cloneLead(l))
		}
	}
	sortLeads(out)
	return truncate(out, limit), nil
}

func (s *Store) DailyCount(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counterKey{userID, day}], nil
}

// Notifications

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.LeadID != "" {
		key := notificationKey{n.LeadID, n.Kind}
		if _, exists := s.notified[key]; exists {
			return false, nil
		}
		s.notified[key] = struct{}{}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications = append(s.notifications, *n)
	return true, nil
}

func (s *Store) LeadsMissingNotification(_ context.Context, since time.Time, limit int) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if l.CreatedAt.Before(since) {
			continue
		}
		if _, ok := s.notified[notificationKey{l.ID, models.KindLeadAccepted}]; !ok {
			out = append(out, cloneLead(l))
		}
	}
	sortLeads(out)
	return truncate(out, limit), nil
}

func (s *Store) Notifications(userID string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if userID == "" || n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// Usage

func (s *Store) RecordUsage(_ context.Context, rec models.AIUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	for _, existing := range s.usage {
		if existing.ID == rec.ID {
			return nil
		}
	}
	s.usage = append(s.usage, rec)
	return nil
}

// SpendSince sums usage from since onwards; an empty userID sums every user.
func (s *Store) SpendSince(_ context.Context, userID string, since time.Time) (models.Spend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var spend models.Spend
	for _, rec := range s.usage {
		if rec.CreatedAt.Before(since) || (userID != "" && rec.UserID != userID) {
			continue
		}
		spend.Calls++
		spend.Tokens += int64(rec.TotalTokens)
		spend.CostUSD += rec.CostUSD
	}
	return spend, nil
}

func (s *Store) UsageRecords() []models.AIUsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.usage)
}

// Users

func (s *Store) UpsertUser(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.users[u.ID]; ok {
		existing.Email, existing.Name, existing.PlanID = u.Email, u.Name, u.PlanID
		existing.DeletedAt = nil
		existing.UpdatedAt = now
		s.users[u.ID] = existing
		return nil
	}
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return u, nil
}

func (s *Store) MarkUserDeleted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	u.DeletedAt = &at
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

func (s *Store) SaveBusinessProfile(_ context.Context, userID string, p models.BusinessProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	p.Keywords = slices.Clone(p.Keywords)
	u.BusinessProfile = &p
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

func (s *Store) PlanIDFor(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return u.PlanID, nil
}

func cloneWatch(w models.Watch) models.Watch {
	w.Keywords = slices.Clone(w.Keywords)
	w.ExcludeKeywords = slices.Clone(w.ExcludeKeywords)
	w.ContentTypes = slices.Clone(w.ContentTypes)
	return w
}

func cloneLead(l models.Lead) models.Lead {
	if l.AIResponse != nil {
		r := *l.AIResponse
		l.AIResponse = &r
	}
	if l.AIAnalysis != nil {
		a := *l.AIAnalysis
		a.PainPoints = slices.Clone(l.AIAnalysis.PainPoints)
		l.AIAnalysis = &a
	}
	return l
}

func sortLeads(leads []models.Lead) {
	sort.Slice(leads, func(i, j int) bool {
		if leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].ID < leads[j].ID
		}
		return leads[i].CreatedAt.Before(leads[j].CreatedAt)
	})
}

func truncate(leads []models.Lead, limit int) []models.Lead {
	if limit > 0 && len(leads) > limit {
		return leads[:limit]
	}
	return leads
}
