package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/leadscout/internal/models"
)

type staticLimits map[string]models.PlanLimits

func (s staticLimits) LimitsFor(_ context.Context, userID string) (models.PlanLimits, error) {
	return s[userID], nil
}

type staticCounts map[string]int

func (s staticCounts) DailyCount(_ context.Context, userID, day string) (int, error) {
	return s[userID+"/"+day], nil
}

func TestDayIsUTC(t *testing.T) {
	la := time.FixedZone("PST", -8*60*60)
	// 20:00 PST on Feb 28 is 04:00 UTC on Mar 1.
	assert.Equal(t, "2026-03-01", Day(time.Date(2026, 2, 28, 20, 0, 0, 0, la)))
}

func TestClaim(t *testing.T) {
	e := NewEnforcer(staticLimits{"U1": {MaxLeadsPerDay: 5}, "U0": {}}, staticCounts{})
	at := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)

	c, err := e.Claim(context.Background(), "U1", at)
	require.NoError(t, err)
	assert.Equal(t, models.QuotaClaim{UserID: "U1", Day: "2026-03-01", Limit: 5}, c)

	_, err = e.Claim(context.Background(), "U0", at)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
}

func TestRemaining(t *testing.T) {
	e := NewEnforcer(
		staticLimits{"U1": {MaxLeadsPerDay: 5}},
		staticCounts{"U1/2026-03-01": 3, "U1/2026-03-02": 9},
	)

	left, err := e.Remaining(context.Background(), "U1", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	left, err = e.Remaining(context.Background(), "U1", time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}
