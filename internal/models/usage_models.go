package models

import "time"

type AIOperation string

const (
	OpExtractBusinessInfo AIOperation = "extract_business_info"
	OpSuggestSubreddits   AIOperation = "suggest_subreddits"
	OpValidateLead        AIOperation = "validate_lead"
	OpAnalyzeLead         AIOperation = "analyze_lead"
	OpGenerateResponse    AIOperation = "generate_response"
)

// AIUsageRecord is written once per AI invocation attempt and never updated.
type AIUsageRecord struct {
	ID               string         `json:"id" dynamodbav:"id"`
	UserID           string         `json:"user_id" dynamodbav:"user_id"`
	LeadID           string         `json:"lead_id,omitempty" dynamodbav:"lead_id,omitempty"`
	Operation        AIOperation    `json:"operation" dynamodbav:"operation"`
	Model            string         `json:"model" dynamodbav:"model"`
	PromptTokens     int            `json:"prompt_tokens" dynamodbav:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens" dynamodbav:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens" dynamodbav:"total_tokens"`
	CostUSD          float64        `json:"cost_usd" dynamodbav:"cost_usd"`
	Success          bool           `json:"success" dynamodbav:"success"`
	Error            string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at" dynamodbav:"created_at"`
}

type Spend struct {
	Calls   int64   `json:"calls"`
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}
