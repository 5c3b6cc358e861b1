package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spacesedan/leadscout/internal/ai"
	"google.golang.org/genai"
)

type GeminiClient struct {
	Client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("[GeminiClient] missing GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("[GeminiClient] failed to create client: %w", err)
	}
	slog.Info("[GeminiClient] Gemini client initialized", slog.String("model", model))
	return &GeminiClient{Client: client, model: model}, nil
}

func (c *GeminiClient) Ping(ctx context.Context) error {
	_, err := c.Client.Models.Get(ctx, c.model, nil)
	return err
}

func (c *GeminiClient) Invoke(ctx context.Context, req ai.Request) (ai.Response, error) {
	out := ai.Response{Model: c.model}

	system, user, err := ai.BuildPrompt(req)
	if err != nil {
		return out, err
	}

	temperature := float32(0.2)
	result, err := c.Client.Models.GenerateContent(ctx, c.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		Temperature:       &temperature,
	})
	if err != nil {
		err = classifyGeminiError(ctx, err)
		if errors.Is(err, ai.ErrProviderTimeout) || errors.Is(err, ai.ErrProviderUnavailable) {
			out.PromptTokens = ai.EstimateTokens(system) + ai.EstimateTokens(user)
			out.Estimated = true
		}
		return out, err
	}

	if result.UsageMetadata != nil {
		out.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return out, fmt.Errorf("%w: no candidates", ai.ErrMalformedOutput)
	}
	candidate := result.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return out, fmt.Errorf("%w: safety filter", ai.ErrContentRejected)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	out.Payload = []byte(text.String())
	return out, nil
}

func classifyGeminiError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ai.ErrProviderTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "exhausted"):
		return fmt.Errorf("%w: %w", ai.ErrProviderRateLimited, err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid_argument") || strings.Contains(msg, "blocked"):
		return fmt.Errorf("%w: %w", ai.ErrContentRejected, err)
	default:
		return fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, err)
	}
}
