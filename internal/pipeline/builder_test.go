package pipeline

import (
	"briefcast/internal/config"
	"briefcast/internal/llm"
	"context"
	"errors"
	"testing"
)

type stubLLM struct{}

func (stubLLM) GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error) {
	return "", errors.New("offline")
}

func (stubLLM) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, errors.New("offline")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Audio.Enabled = true
	cfg.Audio.IntervalHours = 6
	cfg.Audio.OutputDir = t.TempDir()
	cfg.Audio.PublicDir = t.TempDir()
	cfg.Audio.Filename = "latest.mp3"
	cfg.Audio.ChaptersFilename = "chapters.json"
	cfg.Audio.TranscriptFilename = "transcript.txt"
	cfg.TTS.Provider = "kokoro"
	cfg.Fetch.Enabled = true
	return cfg
}

func TestConfigFrom(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Gemini.APIKey = "key"
	cfg.TTS.Endpoint = "http://tts.local"

	pc := ConfigFrom(cfg)
	if !pc.Enabled || pc.IntervalHours != 6 || !pc.HasAPIKey || !pc.FetchEnabled {
		t.Errorf("Unexpected pipeline config %+v", pc)
	}
	if pc.Provider != "kokoro" || pc.Endpoint != "http://tts.local" || pc.Filename != "latest.mp3" {
		t.Errorf("Unexpected speech settings %+v", pc)
	}
}

func TestBuilderRequiresConfig(t *testing.T) {
	if _, err := NewBuilder(nil).Build(context.Background()); err == nil {
		t.Error("Expected error without configuration")
	}
}

func TestBuilderWiresStages(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Gemini.APIKey = "key"

	p, err := NewBuilder(cfg).WithLLMClient(stubLLM{}).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	s := p.stages
	if s.Fetcher == nil || s.Clusterer == nil || s.Summarizer == nil || s.Builder == nil ||
		s.Deduplicator == nil || s.NewSynthesizer == nil || s.Assembler == nil {
		t.Fatalf("Expected every stage to be wired, got %+v", s)
	}
	if p.client == nil {
		t.Error("Expected a shared HTTP client")
	}
	if p.analytics != nil {
		t.Error("Expected analytics off without a PostHog client")
	}

	// The kokoro model files do not exist, so the factory fails only when
	// called.
	if _, err := s.NewSynthesizer(); err == nil {
		t.Error("Expected synthesizer creation to fail without model files")
	}
}

func TestBuilderWithoutAPIKey(t *testing.T) {
	p, err := NewBuilder(testConfig(t)).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = p.Generate(context.Background(), items())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}
