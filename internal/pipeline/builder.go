package pipeline

import (
	"briefcast/internal/audio"
	"briefcast/internal/clustering"
	"briefcast/internal/config"
	"briefcast/internal/fetch"
	"briefcast/internal/llm"
	"briefcast/internal/observability"
	"briefcast/internal/script"
	"briefcast/internal/summarize"
	"briefcast/internal/tts"
	"context"
	"fmt"
	"net/http"
	"time"
)

// LLM is the generative client the stages share
type LLM interface {
	llm.TextGenerator
	llm.Embedder
}

// Builder assembles a Pipeline from application configuration
type Builder struct {
	cfg        *config.Config
	llmClient  LLM
	httpClient *http.Client
	posthog    *observability.PostHogClient
	history    HistoryRecorder
	runner     tts.CommandRunner
}

// NewBuilder creates a builder for cfg
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithLLMClient sets the generative client instead of creating a Gemini one
func (b *Builder) WithLLMClient(client LLM) *Builder {
	b.llmClient = client
	return b
}

// WithHTTPClient sets the client shared by fetching and remote speech
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithAnalytics traces generative calls and reports generated briefings
func (b *Builder) WithAnalytics(client *observability.PostHogClient) *Builder {
	b.posthog = client
	return b
}

// WithHistory records every run
func (b *Builder) WithHistory(recorder HistoryRecorder) *Builder {
	b.history = recorder
	return b
}

// WithCommandRunner replaces os/exec for ffmpeg, ffprobe and subprocess engines
func (b *Builder) WithCommandRunner(runner tts.CommandRunner) *Builder {
	b.runner = runner
	return b
}

// Build constructs the pipeline. A missing API key is not an error here:
// the pipeline reports it when a run is attempted.
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	cfg := b.cfg

	if b.httpClient == nil {
		b.httpClient = &http.Client{}
	}
	if b.runner == nil {
		b.runner = tts.ExecRunner{}
	}

	if b.llmClient == nil && cfg.AI.Gemini.APIKey != "" {
		client, err := llm.NewClient(ctx, llm.Options{
			APIKey:              cfg.AI.Gemini.APIKey,
			Model:               cfg.AI.Gemini.Model,
			EmbeddingModel:      cfg.AI.Gemini.EmbeddingModel,
			EmbeddingDimensions: cfg.AI.Gemini.EmbeddingDimensions,
			Timeout:             config.ParseDuration(cfg.AI.Gemini.Timeout, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		b.llmClient = llm.NewTracedClient(client, b.posthog)
	}

	fetcher := fetch.NewFetcher(b.httpClient, fetch.Options{
		Timeout:   config.ParseDuration(cfg.Fetch.Timeout, 5*time.Second),
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
	})

	var embedder clustering.Embedder
	if cfg.Clustering.Semantic && b.llmClient != nil {
		embedder = b.llmClient
	}
	clusterer := clustering.NewClusterer(clustering.Options{
		Fuzzy:             cfg.Clustering.Fuzzy,
		FuzzyThreshold:    cfg.Clustering.FuzzyThreshold,
		SemanticThreshold: cfg.Clustering.SemanticThreshold,
	}, embedder)

	summaryOpts := summarize.DefaultOptions()
	summaryOpts.Prompt = cfg.Audio.SummaryPrompt
	summaryOpts.Model = cfg.AI.Gemini.Model

	dedupeOpts := script.DefaultDedupeOptions()
	dedupeOpts.Enabled = cfg.Audio.DedupeEnabled
	dedupeOpts.Prompt = cfg.Audio.DedupePrompt
	dedupeOpts.Fallback = cfg.Audio.DedupeFallback
	dedupeOpts.Model = cfg.AI.Gemini.Model

	prober := tts.NewProber(cfg.Audio.FFprobePath).WithRunner(b.runner)
	ttsCfg := cfg.TTS
	deps := tts.Deps{HTTPClient: b.httpClient, Prober: prober, Runner: b.runner}

	stages := Stages{
		Fetcher:    fetcher,
		Clusterer:  clusterer,
		Summarizer: summarize.NewSummarizer(b.llmClient, summaryOpts),
		Builder: script.NewBuilder(script.BuilderOptions{
			Intro:        cfg.Audio.IntroText,
			Outro:        cfg.Audio.OutroText,
			ChapterTitle: cfg.Audio.ChapterFallback,
		}),
		Deduplicator: script.NewDeduplicator(b.llmClient, dedupeOpts),
		NewSynthesizer: func() (tts.Synthesizer, error) {
			return tts.New(ttsCfg, deps)
		},
		Assembler: audio.NewAssembler(audio.Options{
			FFmpegPath: cfg.Audio.FFmpegPath,
			Codec:      cfg.Audio.Codec,
			Quality:    cfg.Audio.Quality,
		}, b.runner),
	}

	p := NewPipeline(stages, ConfigFrom(cfg)).WithHTTPClient(b.httpClient)
	if b.history != nil {
		p.WithHistory(b.history)
	}
	if b.posthog.IsEnabled() {
		p.WithAnalytics(b.posthog)
	}
	return p, nil
}

// ConfigFrom extracts the pipeline settings from application configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Enabled:            cfg.Audio.Enabled,
		IntervalHours:      cfg.Audio.IntervalHours,
		OutputDir:          cfg.Audio.OutputDir,
		PublicDir:          cfg.Audio.PublicDir,
		Filename:           cfg.Audio.Filename,
		ChaptersFilename:   cfg.Audio.ChaptersFilename,
		TranscriptFilename: cfg.Audio.TranscriptFilename,
		Provider:           cfg.TTS.Provider,
		Endpoint:           cfg.TTS.Endpoint,
		HasAPIKey:          cfg.AI.Gemini.APIKey != "",
		FetchEnabled:       cfg.Fetch.Enabled,
	}
}
