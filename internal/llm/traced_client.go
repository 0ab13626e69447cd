package llm

import (
	"briefcast/internal/observability"
	"context"
	"time"
)

// TracedClient wraps a Client and reports each call to PostHog.
type TracedClient struct {
	client  *Client
	posthog *observability.PostHogClient
}

// NewTracedClient wraps client. A nil or disabled PostHog client makes the
// wrapper a pass-through.
func NewTracedClient(client *Client, posthog *observability.PostHogClient) *TracedClient {
	return &TracedClient{client: client, posthog: posthog}
}

// GenerateText generates text with tracing
func (tc *TracedClient) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	startTime := time.Now()
	result, err := tc.client.GenerateText(ctx, prompt, options)

	if tc.posthog.IsEnabled() {
		model := options.Model
		if model == "" {
			model = tc.client.modelName
		}
		_ = tc.posthog.TrackLLMCall(ctx, model, "text_generation", estimateTokens(prompt, result), time.Since(startTime).Milliseconds(), err == nil)
	}

	return result, err
}

// Embed generates an embedding with tracing
func (tc *TracedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	startTime := time.Now()
	result, err := tc.client.Embed(ctx, text)

	if tc.posthog.IsEnabled() {
		_ = tc.posthog.TrackLLMCall(ctx, tc.client.embeddingModel, "embedding", estimateTokens(text, ""), time.Since(startTime).Milliseconds(), err == nil)
	}

	return result, err
}

// estimateTokens approximates token usage at four bytes per token.
func estimateTokens(prompt, completion string) int {
	return (len(prompt) + len(completion)) / 4
}
