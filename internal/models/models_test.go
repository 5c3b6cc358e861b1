package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to LeadStatus
		ok       bool
	}{
		{LeadNew, LeadRead, true},
		{LeadNew, LeadResponded, true},
		{LeadRead, LeadNew, true},
		{LeadRead, LeadDeleted, true},
		{LeadResponded, LeadDeleted, true},
		{LeadResponded, LeadNew, false},
		{LeadDeleted, LeadNew, false},
		{LeadDeleted, LeadRead, false},
		{LeadNew, LeadNew, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			got, err := tc.from.Transition(tc.to)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.to, got)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tc.from, got)
		})
	}
}

func TestLeadChangeStatusStampsTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lead := Lead{Status: LeadNew}

	require.NoError(t, lead.ChangeStatus(LeadRead, at))
	assert.Equal(t, LeadRead, lead.Status)
	assert.Equal(t, at, lead.StatusChangedAt)

	lead.Status = LeadDeleted
	err := lead.ChangeStatus(LeadNew, at.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, at, lead.StatusChangedAt)
}

func TestWatchStatusTransitions(t *testing.T) {
	next, err := WatchActive.Transition(WatchPaused)
	require.NoError(t, err)
	assert.Equal(t, WatchPaused, next)

	_, err = WatchPaused.Transition(WatchPaused)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWatchAccountDefaults(t *testing.T) {
	assert.Equal(t, DefaultSourceAccount, Watch{}.Account())
	assert.Equal(t, "ops", Watch{SourceAccount: "ops"}.Account())
	assert.True(t, Watch{ContentTypes: []ContentType{ContentPost}}.Accepts(ContentPost))
	assert.False(t, Watch{ContentTypes: []ContentType{ContentPost}}.Accepts(ContentComment))
}

func TestRateLimitedErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("poll: %w", &RateLimitedError{Account: "default", RetryAfter: time.Minute})

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, errors.Is(err, ErrSourceUnavailable))

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Minute, rl.RetryAfter)
}
