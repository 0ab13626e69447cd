package observability

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"context"
	"fmt"
	"log/slog"

	"github.com/posthog/posthog-go"
)

// systemDistinctID is the PostHog identity used for pipeline events.
const systemDistinctID = "briefcast"

// enqueuer is the part of posthog.Client the tracker uses.
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// PostHogClient wraps the PostHog SDK for product analytics
type PostHogClient struct {
	client  enqueuer
	enabled bool
	log     *slog.Logger
}

// EventProperties contains properties for an event
type EventProperties map[string]interface{}

// NewPostHogClient creates a PostHog client. Without an API key the client
// is disabled and every call is a no-op.
func NewPostHogClient(cfg config.PostHogConfig) (*PostHogClient, error) {
	if cfg.APIKey == "" {
		return &PostHogClient{
			enabled: false,
			log:     slog.Default(),
		}, nil
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		Endpoint: cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return &PostHogClient{
		client:  client,
		enabled: true,
		log:     slog.Default(),
	}, nil
}

// IsEnabled returns whether PostHog tracking is enabled
func (p *PostHogClient) IsEnabled() bool {
	return p != nil && p.enabled
}

// Capture sends an event to PostHog
func (p *PostHogClient) Capture(ctx context.Context, distinctID string, event string, properties EventProperties) error {
	if !p.IsEnabled() {
		return nil
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}

	if err := p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	}); err != nil {
		p.log.Warn("PostHog enqueue failed", "event", event, "error", err.Error())
		return err
	}
	return nil
}

// TrackLLMCall tracks generative API calls for cost and performance monitoring
func (p *PostHogClient) TrackLLMCall(ctx context.Context, model string, operation string, tokens int, latencyMs int64, successful bool) error {
	return p.Capture(ctx, systemDistinctID, "llm_call", EventProperties{
		"model":      model,
		"operation":  operation, // "text_generation", "embedding"
		"tokens":     tokens,
		"latency_ms": latencyMs,
		"successful": successful,
	})
}

// TrackBriefingGenerated tracks a finished audio briefing.
func (p *PostHogClient) TrackBriefingGenerated(ctx context.Context, runID string, result *core.AudioResult, stats core.RunStats) error {
	props := EventProperties{
		"run_id":     runID,
		"items":      stats.Items,
		"clusters":   stats.Clusters,
		"summaries":  stats.Summaries,
		"segments":   stats.Segments,
		"chapters":   stats.Chapters,
		"duration_s": stats.DurationSeconds,
		"provider":   stats.Provider,
		"elapsed_ms": stats.ElapsedMs,
	}
	if result != nil {
		props["generated"] = result.Generated
	}
	return p.Capture(ctx, systemDistinctID, "briefing_generated", props)
}

// Shutdown flushes pending events and closes the client.
func (p *PostHogClient) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}

	return p.client.Close()
}
