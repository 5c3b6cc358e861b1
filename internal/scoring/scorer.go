package scoring

import (
	"math"
	"time"

	"github.com/spacesedan/leadscout/internal/models"
)

const (
	MinScore  = 0
	MaxScore  = 100
	BaseScore = 50
)

// Signals are the inputs the priority score is computed from. Now is part of the
// input so the same signals always give the same score.
type Signals struct {
	MatchStrength   float64
	PostedAt        time.Time
	Now             time.Time
	SubscriberCount int
	Type            models.ContentType
	Origin          models.LeadOrigin
	// Sentiment is the VADER compound polarity of the content in [-1, 1].
	Sentiment float64
}

// Score maps signals to an integer in [MinScore, MaxScore].
func Score(s Signals) int {
	score := BaseScore
	score += matchAdjustment(s.MatchStrength)
	score += recencyAdjustment(s.Now.Sub(s.PostedAt))
	score += audienceAdjustment(s.SubscriberCount)
	score += typeAdjustment(s.Type)
	score += sentimentAdjustment(s.Sentiment)
	if s.Origin == models.OriginAdmin {
		score += 10
	}
	return clamp(score)
}

// matchAdjustment contributes up to +20 for matching every include keyword.
func matchAdjustment(strength float64) int {
	if math.IsNaN(strength) || strength <= 0 {
		return 0
	}
	if strength > 1 {
		strength = 1
	}
	return int(math.Round(strength * 20))
}

func recencyAdjustment(age time.Duration) int {
	switch {
	case age < time.Hour:
		return 15
	case age < 6*time.Hour:
		return 10
	case age < 24*time.Hour:
		return 5
	case age < 72*time.Hour:
		return 0
	default:
		return -10
	}
}

// Smaller communities get a bump; replies there are more visible.
func audienceAdjustment(subscribers int) int {
	switch {
	case subscribers <= 0:
		return 0
	case subscribers < 1_000:
		return 10
	case subscribers < 10_000:
		return 5
	case subscribers < 100_000:
		return 0
	case subscribers < 1_000_000:
		return -5
	default:
		return -10
	}
}

func typeAdjustment(t models.ContentType) int {
	if t == models.ContentPost {
		return 5
	}
	return 0
}

// Negative sentiment usually means someone describing a problem.
func sentimentAdjustment(compound float64) int {
	switch {
	case compound <= -0.5:
		return 10
	case compound <= -0.2:
		return 5
	default:
		return 0
	}
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
