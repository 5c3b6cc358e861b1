package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spacesedan/leadscout/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestScoreBounds(t *testing.T) {
	strengths := []float64{-5, 0, 0.25, 0.5, 1, 7, math.NaN(), math.Inf(1)}
	ages := []time.Duration{-time.Hour, 0, 30 * time.Minute, 3 * time.Hour, 12 * time.Hour, 48 * time.Hour, 900 * time.Hour}
	subs := []int{-1, 0, 10, 5_000, 50_000, 500_000, 50_000_000}
	types := []models.ContentType{models.ContentPost, models.ContentComment, ""}
	origins := []models.LeadOrigin{models.OriginSystem, models.OriginAdmin}
	sentiments := []float64{-1, -0.3, 0, 1}

	for _, st := range strengths {
		for _, age := range ages {
			for _, sub := range subs {
				for _, ty := range types {
					for _, o := range origins {
						for _, se := range sentiments {
							score := Score(Signals{
								MatchStrength:   st,
								PostedAt:        now.Add(-age),
								Now:             now,
								SubscriberCount: sub,
								Type:            ty,
								Origin:          o,
								Sentiment:       se,
							})
							assert.GreaterOrEqual(t, score, MinScore)
							assert.LessOrEqual(t, score, MaxScore)
						}
					}
				}
			}
		}
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	s := Signals{MatchStrength: 0.5, PostedAt: now.Add(-2 * time.Hour), Now: now, SubscriberCount: 4200, Type: models.ContentComment}
	first := Score(s)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Score(s))
	}
}

func TestScoreComposition(t *testing.T) {
	// 50 base + 10 match + 10 recency + 5 audience + 0 type
	s := Signals{MatchStrength: 0.5, PostedAt: now.Add(-2 * time.Hour), Now: now, SubscriberCount: 4200, Type: models.ContentComment}
	assert.Equal(t, 75, Score(s))
}

func TestScoreClampsHigh(t *testing.T) {
	s := Signals{
		MatchStrength:   1,
		PostedAt:        now,
		Now:             now,
		SubscriberCount: 200,
		Type:            models.ContentPost,
		Origin:          models.OriginAdmin,
		Sentiment:       -0.9,
	}
	assert.Equal(t, MaxScore, Score(s))
}

func TestOlderAndLargerScoresLower(t *testing.T) {
	fresh := Signals{MatchStrength: 1, PostedAt: now.Add(-10 * time.Minute), Now: now, SubscriberCount: 800, Type: models.ContentPost}
	stale := fresh
	stale.PostedAt = now.Add(-100 * time.Hour)
	stale.SubscriberCount = 2_000_000

	assert.Greater(t, Score(fresh), Score(stale))
}
