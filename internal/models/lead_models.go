package models

import (
	"fmt"
	"time"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadRead      LeadStatus = "read"
	LeadResponded LeadStatus = "responded"
	LeadDeleted   LeadStatus = "deleted"
)

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadNew:       {LeadRead, LeadResponded, LeadDeleted},
	LeadRead:      {LeadNew, LeadResponded, LeadDeleted},
	LeadResponded: {LeadDeleted},
}

// Transition returns next if the move from s is allowed. Deleted is terminal.
func (s LeadStatus) Transition(next LeadStatus) (LeadStatus, error) {
	for _, allowed := range leadTransitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("%w: lead %s -> %s", ErrInvalidTransition, s, next)
}

type LeadOrigin string

const (
	OriginSystem LeadOrigin = "system"
	OriginAdmin  LeadOrigin = "admin"
)

type EnrichmentState string

const (
	EnrichmentPending       EnrichmentState = "pending"
	EnrichmentDone          EnrichmentState = "done"
	EnrichmentFailed        EnrichmentState = "failed"
	EnrichmentSkippedBudget EnrichmentState = "skipped_budget"
)

type LeadAnalysis struct {
	Relevant          bool     `json:"relevant"`
	RelevanceScore    int      `json:"relevance_score"`
	Summary           string   `json:"summary"`
	PainPoints        []string `json:"pain_points,omitempty"`
	BuyingIntent      string   `json:"buying_intent,omitempty"`
	SuggestedApproach string   `json:"suggested_approach,omitempty"`
}

type Lead struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	WatchID            string          `json:"watch_id,omitempty"`
	Subreddit          string          `json:"subreddit"`
	PostID             string          `json:"post_id"`
	ParentID           string          `json:"parent_id,omitempty"`
	Type               ContentType     `json:"type"`
	Title              string          `json:"title,omitempty"`
	Content            string          `json:"content"`
	Author             string          `json:"author"`
	URL                string          `json:"url"`
	Status             LeadStatus      `json:"status"`
	PriorityScore      int             `json:"priority_score"`
	AIResponse         *string         `json:"ai_response"`
	AIAnalysis         *LeadAnalysis   `json:"ai_analysis"`
	Origin             LeadOrigin      `json:"origin"`
	EnrichmentState    EnrichmentState `json:"enrichment_state"`
	EnrichmentAttempts int             `json:"enrichment_attempts"`
	StatusChangedAt    time.Time       `json:"status_changed_at"`
	PostedAt           time.Time       `json:"posted_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ChangeStatus applies a validated transition and stamps the change time.
func (l *Lead) ChangeStatus(next LeadStatus, at time.Time) error {
	status, err := l.Status.Transition(next)
	if err != nil {
		return err
	}
	l.Status = status
	l.StatusChangedAt = at
	l.UpdatedAt = at
	return nil
}

// ContentItem is one post or comment as returned by the content source.
type ContentItem struct {
	PostID          string      `json:"post_id"`
	ParentID        string      `json:"parent_id,omitempty"`
	Type            ContentType `json:"type"`
	Subreddit       string      `json:"subreddit"`
	Title           string      `json:"title,omitempty"`
	Content         string      `json:"content"`
	Author          string      `json:"author"`
	URL             string      `json:"url"`
	SubscriberCount int         `json:"subscriber_count"`
	CreatedAt       time.Time   `json:"created_at"`
}

// AcceptOutcome is the result of offering a candidate lead to the gate.
type AcceptOutcome string

const (
	OutcomeCreated       AcceptOutcome = "created"
	OutcomeDuplicate     AcceptOutcome = "duplicate"
	OutcomeQuotaExceeded AcceptOutcome = "quota_exceeded"
)

// QuotaClaim is a request to consume one unit of a user's daily lead counter.
type QuotaClaim struct {
	UserID string
	Day    string
	Limit  int
}
