package ai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spacesedan/leadscout/internal/models"
)

var (
	ErrProviderRateLimited = errors.New("ai provider rate limited")
	ErrProviderTimeout     = errors.New("ai provider timeout")
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	// ErrContentRejected marks input the provider refuses; retrying will not help.
	ErrContentRejected = errors.New("ai provider rejected content")
	ErrMalformedOutput = errors.New("ai provider returned malformed output")
)

type Request struct {
	UserID    string
	LeadID    string
	Operation models.AIOperation
	// Payload is the operation input, encoded into the prompt as JSON.
	Payload any
}

// Response carries the provider output and what the call consumed. Providers
// fill Model and the token counts even when they also return an error.
type Response struct {
	Payload          json.RawMessage
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	// Estimated is set when token counts were estimated locally.
	Estimated bool
}

// Provider is the AI service collaborator.
type Provider interface {
	Invoke(ctx context.Context, req Request) (Response, error)
	Ping(ctx context.Context) error
}

// Retryable reports whether an invocation error is worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, models.ErrEnrichmentBudgetExceeded),
		errors.Is(err, ErrContentRejected):
		return false
	default:
		return true
	}
}

// EstimateTokens approximates the token count of text at four bytes per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Decode unmarshals a response payload, classifying failures as malformed output.
func Decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Join(ErrMalformedOutput, err)
	}
	return nil
}
