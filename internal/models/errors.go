package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSourceUnavailable        = errors.New("content source unavailable")
	ErrRateLimited              = errors.New("rate limited")
	ErrDuplicateCandidate       = errors.New("duplicate candidate")
	ErrQuotaExceeded            = errors.New("daily lead quota exceeded")
	ErrEnrichmentFailed         = errors.New("enrichment failed")
	ErrEnrichmentBudgetExceeded = errors.New("enrichment budget exceeded")
	ErrPersistenceConflict      = errors.New("persistence conflict")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrNotFound                 = errors.New("not found")
)

// RateLimitedError is returned by a content source that asked us to slow down.
type RateLimitedError struct {
	Account    string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("source account %q rate limited, retry after %s", e.Account, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
