package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/spacesedan/leadscout/internal/models"
)

const DayLayout = "2006-01-02"

type LimitsProvider interface {
	LimitsFor(ctx context.Context, userID string) (models.PlanLimits, error)
}

type CounterReader interface {
	DailyCount(ctx context.Context, userID, day string) (int, error)
}

// Enforcer turns a user's plan into a claim on the daily counter. The claim is
// settled atomically by the storage layer together with the lead insert.
type Enforcer struct {
	limits   LimitsProvider
	counters CounterReader
}

func NewEnforcer(limits LimitsProvider, counters CounterReader) *Enforcer {
	return &Enforcer{limits: limits, counters: counters}
}

// Day returns the counter key for t: its UTC calendar date.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Claim builds the quota claim for a candidate seen at the given time. A plan
// with no daily allowance is rejected here without touching storage.
func (e *Enforcer) Claim(ctx context.Context, userID string, at time.Time) (models.QuotaClaim, error) {
	limits, err := e.limits.LimitsFor(ctx, userID)
	if err != nil {
		return models.QuotaClaim{}, fmt.Errorf("[QuotaEnforcer] limits for %s: %w", userID, err)
	}
	claim := models.QuotaClaim{UserID: userID, Day: Day(at), Limit: limits.MaxLeadsPerDay}
	if claim.Limit <= 0 {
		return claim, models.ErrQuotaExceeded
	}
	return claim, nil
}

// Remaining reports how many more leads the user may accept today. It is a
// reading for reports and never gates acceptance.
func (e *Enforcer) Remaining(ctx context.Context, userID string, at time.Time) (int, error) {
	limits, err := e.limits.LimitsFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	used, err := e.counters.DailyCount(ctx, userID, Day(at))
	if err != nil {
		return 0, err
	}
	return max(limits.MaxLeadsPerDay-used, 0), nil
}
