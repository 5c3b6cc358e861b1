package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spacesedan/leadscout/internal/ai"
	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIRequestTimeout = 60 * time.Second // Timeout for individual OpenAI API requests
)

type OpenAIClient struct {
	Client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("[OpenAIClient] missing OPENAI_API_KEY")
	}
	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = &http.Client{
		Timeout: openAIRequestTimeout,
	}

	slog.Info("[OpenAIClient] OpenAI client initialized with custom HTTP timeout",
		slog.Duration("timeout", openAIRequestTimeout),
		slog.String("model", model))
	return &OpenAIClient{Client: openai.NewClientWithConfig(config), model: model}, nil
}

func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.Client.ListModels(ctx)
	return err
}

// Invoke runs one chat completion in JSON mode.
func (c *OpenAIClient) Invoke(ctx context.Context, req ai.Request) (ai.Response, error) {
	out := ai.Response{Model: c.model}

	system, user, err := ai.BuildPrompt(req)
	if err != nil {
		return out, err
	}

	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		err = classifyOpenAIError(ctx, err)
		// A timed out or failed request may still have been billed for its prompt.
		if errors.Is(err, ai.ErrProviderTimeout) || errors.Is(err, ai.ErrProviderUnavailable) {
			out.PromptTokens = ai.EstimateTokens(system) + ai.EstimateTokens(user)
			out.Estimated = true
		}
		return out, err
	}

	if resp.Model != "" {
		out.Model = resp.Model
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens

	if len(resp.Choices) == 0 {
		return out, fmt.Errorf("%w: no choices", ai.ErrMalformedOutput)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return out, fmt.Errorf("%w: content filter", ai.ErrContentRejected)
	}
	out.Payload = []byte(choice.Message.Content)
	return out, nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ai.ErrProviderTimeout, err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ai.ErrProviderRateLimited, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", ai.ErrContentRejected, err)
	default:
		return fmt.Errorf("%w: %w", ai.ErrProviderUnavailable, err)
	}
}
