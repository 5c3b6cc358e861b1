package models

import (
	"fmt"
	"slices"
	"time"
)

type ContentType string

const (
	ContentPost    ContentType = "post"
	ContentComment ContentType = "comment"
)

type WatchStatus string

const (
	WatchActive WatchStatus = "active"
	WatchPaused WatchStatus = "paused"
)

// DefaultSourceAccount is used by watches that do not name an account.
const DefaultSourceAccount = "default"

type Watch struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id" validate:"required"`
	Subreddit       string        `json:"subreddit" validate:"required,min=2,max=21,subreddit"`
	Keywords        []string      `json:"keywords" validate:"max=50,dive,min=1,max=64"`
	ExcludeKeywords []string      `json:"exclude_keywords" validate:"max=50,dive,min=1,max=64"`
	ContentTypes    []ContentType `json:"content_types" validate:"required,min=1,dive,oneof=post comment"`
	Status          WatchStatus   `json:"status" validate:"oneof=active paused"`
	SourceAccount   string        `json:"source_account"`
	LastCheckpoint  time.Time     `json:"last_checkpoint"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (w Watch) Accepts(t ContentType) bool {
	return slices.Contains(w.ContentTypes, t)
}

func (w Watch) Account() string {
	if w.SourceAccount == "" {
		return DefaultSourceAccount
	}
	return w.SourceAccount
}

// Transition returns the status reached by moving from s to next.
func (s WatchStatus) Transition(next WatchStatus) (WatchStatus, error) {
	switch {
	case s == WatchActive && next == WatchPaused,
		s == WatchPaused && next == WatchActive:
		return next, nil
	default:
		return s, fmt.Errorf("%w: watch %s -> %s", ErrInvalidTransition, s, next)
	}
}
