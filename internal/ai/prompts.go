package ai

import (
	"encoding/json"
	"fmt"

	"github.com/spacesedan/leadscout/internal/models"
)

var systemPrompts = map[models.AIOperation]string{
	models.OpExtractBusinessInfo: `You read a company's own description and extract a business profile.
Reply with JSON: {"name": string, "description": string, "offering": string, "target_audience": string, "keywords": [string]}.`,
	models.OpSuggestSubreddits: `You recommend subreddits where a business's potential customers discuss their problems.
Reply with JSON: {"subreddits": [string]} using names without the r/ prefix.`,
	models.OpValidateLead: `You decide whether a reddit post or comment is a genuine sales opportunity for the business described.
Reply with JSON: {"relevant": boolean, "relevance_score": integer 0-100, "reason": string}.`,
	models.OpAnalyzeLead: `You analyse a reddit post or comment that is a sales opportunity for the business described.
Reply with JSON: {"summary": string, "pain_points": [string], "buying_intent": "low"|"medium"|"high", "suggested_approach": string}.`,
	models.OpGenerateResponse: `You draft a short, helpful, non-salesy reddit reply on behalf of the business described.
Follow the subreddit's tone, answer the question first and mention the product only where it genuinely helps.
Reply with JSON: {"response": string} where response is markdown.`,
}

// BuildPrompt returns the system and user messages for req.
func BuildPrompt(req Request) (system, user string, err error) {
	system, ok := systemPrompts[req.Operation]
	if !ok {
		return "", "", fmt.Errorf("unknown ai operation %q", req.Operation)
	}
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return "", "", fmt.Errorf("encode %s payload: %w", req.Operation, err)
	}
	return system, string(payload), nil
}

// LeadInput is the payload of the per-lead operations.
type LeadInput struct {
	Business  *models.BusinessProfile `json:"business"`
	Subreddit string                  `json:"subreddit"`
	Type      models.ContentType      `json:"type"`
	Title     string                  `json:"title,omitempty"`
	Content   string                  `json:"content"`
	Analysis  *models.LeadAnalysis    `json:"analysis,omitempty"`
}

type Validation struct {
	Relevant       bool   `json:"relevant"`
	RelevanceScore int    `json:"relevance_score"`
	Reason         string `json:"reason"`
}

type Analysis struct {
	Summary           string   `json:"summary"`
	PainPoints        []string `json:"pain_points"`
	BuyingIntent      string   `json:"buying_intent"`
	SuggestedApproach string   `json:"suggested_approach"`
}

type Draft struct {
	Response string `json:"response"`
}

type SubredditSuggestions struct {
	Subreddits []string `json:"subreddits"`
}
