package pipeline

import (
	"briefcast/internal/audio"
	"briefcast/internal/core"
	"briefcast/internal/history"
	"briefcast/internal/script"
	"briefcast/internal/tts"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeFetcher struct{ called bool }

func (f *fakeFetcher) Enrich(ctx context.Context, items []core.Item) {
	f.called = true
	for i := range items {
		items[i].Content = "body of " + items[i].Title
	}
}

type fakeClusterer struct{}

func (fakeClusterer) Cluster(ctx context.Context, items []core.Item) []core.Cluster {
	clusters := make([]core.Cluster, len(items))
	for i, item := range items {
		clusters[i] = core.Cluster{Items: []core.Item{item}, Normalized: item.Title}
	}
	return clusters
}

type fakeSummarizer struct{ none bool }

func (f fakeSummarizer) SummarizeAll(ctx context.Context, clusters []core.Cluster) []core.Summary {
	if f.none {
		return nil
	}
	var out []core.Summary
	for i, c := range clusters {
		title := c.Items[0].Title
		out = append(out, core.Summary{
			Title:         title,
			Summary:       "long " + title,
			ShortSummary:  "short " + title,
			PriorityScore: float64(100 - i),
			Sources:       []string{"src"},
		})
	}
	return out
}

// dropLast removes the last story segment
type dropLast struct{}

func (dropLast) Dedupe(ctx context.Context, segments []core.Segment) []core.Segment {
	out := append([]core.Segment{}, segments[:len(segments)-2]...)
	return append(out, segments[len(segments)-1])
}

type fakeSynth struct {
	dir    string
	closed bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, segments []core.Segment, dir string) (*tts.Output, error) {
	f.dir = dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	out := &tts.Output{}
	for i, seg := range segments {
		path := filepath.Join(dir, fmt.Sprintf("segment_%03d.wav", i))
		if err := os.WriteFile(path, []byte(seg.Text), 0644); err != nil {
			return nil, err
		}
		out.Paths = append(out.Paths, path)
		out.Segments = append(out.Segments, seg)
		out.Durations = append(out.Durations, 10)
	}
	return out, nil
}

func (f *fakeSynth) Close() { f.closed = true }

type fakeAssembler struct {
	err   error
	calls int
}

func (f *fakeAssembler) Assemble(ctx context.Context, paths []string, output string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(output, []byte("mp3"), 0644)
}

type fakeHistory struct{ runs []history.Run }

func (f *fakeHistory) Record(ctx context.Context, run history.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

type fakeAnalytics struct{ events []core.RunStats }

func (f *fakeAnalytics) TrackBriefingGenerated(ctx context.Context, runID string, result *core.AudioResult, stats core.RunStats) error {
	f.events = append(f.events, stats)
	return nil
}

type harness struct {
	pipeline  *Pipeline
	fetcher   *fakeFetcher
	synth     *fakeSynth
	assembler *fakeAssembler
	history   *fakeHistory
	analytics *fakeAnalytics
	config    Config
}

func newHarness(t *testing.T, mutate func(*Config, *Stages)) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(root, "output", "audio")
	cfg.PublicDir = filepath.Join(root, "public")
	cfg.Endpoint = "http://tts.local/speak"
	cfg.HasAPIKey = true

	h := &harness{
		fetcher:   &fakeFetcher{},
		synth:     &fakeSynth{},
		assembler: &fakeAssembler{},
		history:   &fakeHistory{},
		analytics: &fakeAnalytics{},
	}
	stages := Stages{
		Fetcher:        h.fetcher,
		Clusterer:      fakeClusterer{},
		Summarizer:     fakeSummarizer{},
		Builder:        script.NewBuilder(script.DefaultBuilderOptions()),
		Deduplicator:   dropLast{},
		NewSynthesizer: func() (tts.Synthesizer, error) { return h.synth, nil },
		Assembler:      h.assembler,
	}
	if mutate != nil {
		mutate(&cfg, &stages)
	}
	h.config = cfg
	h.pipeline = NewPipeline(stages, cfg).WithHistory(h.history).WithAnalytics(h.analytics)
	h.pipeline.newRunID = func() string { return "run-1" }
	return h
}

func items() []core.Item {
	return []core.Item{{Title: "A"}, {Title: "B"}, {Title: "C"}}
}

func TestGenerateFullRun(t *testing.T) {
	h := newHarness(t, nil)

	result, err := h.pipeline.Generate(context.Background(), items())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !result.Generated {
		t.Error("Expected a generated result")
	}
	if result.AudioPath != filepath.Join(h.config.PublicDir, "latest.mp3") {
		t.Errorf("Unexpected audio path %q", result.AudioPath)
	}
	if !h.fetcher.called {
		t.Error("Expected items to be enriched")
	}
	if h.synth.dir != filepath.Join(h.config.OutputDir, "segments", "run-1") {
		t.Errorf("Expected per-run segment directory, got %q", h.synth.dir)
	}
	if !h.synth.closed {
		t.Error("Expected synthesizer to be closed after the run")
	}

	for _, path := range []string{result.AudioPath, result.ChaptersPath, result.TranscriptPath,
		filepath.Join(h.config.OutputDir, "latest.mp3"), filepath.Join(h.config.OutputDir, "transcript.txt")} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected artifact %s: %v", path, err)
		}
	}

	lines, err := script.ReadTranscript(result.TranscriptPath)
	if err != nil {
		t.Fatal(err)
	}
	// intro + 3 stories + outro, minus the story dropped by dedupe
	if len(lines) != 4 || lines[0] != script.DefaultIntro || lines[1] != "long A" {
		t.Errorf("Expected deduplicated transcript, got %v", lines)
	}

	chapters, err := audio.ReadChapters(result.ChaptersPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 || chapters[0].Start != 10 || chapters[1].Start != 20 {
		t.Errorf("Unexpected chapters %+v", chapters)
	}

	if len(h.history.runs) != 1 || h.history.runs[0].ID != "run-1" || h.history.runs[0].Error != "" {
		t.Errorf("Expected one successful history row, got %+v", h.history.runs)
	}
	stats := h.analytics.events[0]
	if stats.Items != 3 || stats.Summaries != 3 || stats.Voiced != 4 || stats.Chapters != 2 || stats.DurationSeconds != 40 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestGenerateReusesRecentBriefing(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.pipeline.Generate(context.Background(), items()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	result, err := h.pipeline.Generate(context.Background(), items())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if result.Generated {
		t.Error("Expected reuse within the interval")
	}
	if h.assembler.calls != 1 {
		t.Errorf("Expected no second assembly, got %d calls", h.assembler.calls)
	}

	// A missing public artifact forces regeneration.
	if err := os.Remove(result.TranscriptPath); err != nil {
		t.Fatal(err)
	}
	result, err = h.pipeline.Generate(context.Background(), items())
	if err != nil || !result.Generated {
		t.Errorf("Expected regeneration, got %+v (%v)", result, err)
	}
}

func TestGenerateConfigErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config, *Stages)
		want   error
	}{
		{"disabled", func(c *Config, _ *Stages) { c.Enabled = false }, ErrDisabled},
		{"no api key", func(c *Config, _ *Stages) { c.HasAPIKey = false }, ErrMissingAPIKey},
		{"no endpoint", func(c *Config, _ *Stages) { c.Endpoint = "" }, ErrMissingEndpoint},
		{"local provider needs no endpoint", func(c *Config, _ *Stages) { c.Endpoint = ""; c.Provider = "kokoro" }, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.mutate)
			_, err := h.pipeline.Generate(context.Background(), items())
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
			if tc.want != nil && tc.want != ErrDisabled && !errors.Is(err, ErrConfig) {
				t.Errorf("Expected a configuration error, got %v", err)
			}
		})
	}
}

func TestGenerateStageFailures(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.pipeline.Generate(context.Background(), nil); !errors.Is(err, ErrNoItems) {
		t.Errorf("Expected ErrNoItems, got %v", err)
	}

	h = newHarness(t, func(_ *Config, s *Stages) { s.Summarizer = fakeSummarizer{none: true} })
	if _, err := h.pipeline.Generate(context.Background(), items()); !errors.Is(err, ErrNoSummaries) {
		t.Errorf("Expected ErrNoSummaries, got %v", err)
	}
	if len(h.history.runs) != 1 || h.history.runs[0].Error == "" {
		t.Errorf("Expected failed run recorded, got %+v", h.history.runs)
	}
	if len(h.analytics.events) != 0 {
		t.Error("Expected no analytics for a failed run")
	}

	h = newHarness(t, nil)
	h.assembler.err = errors.New("ffmpeg exploded")
	if _, err := h.pipeline.Generate(context.Background(), items()); err == nil || !strings.Contains(err.Error(), "ffmpeg exploded") {
		t.Errorf("Expected assembly error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.config.PublicDir, "latest.mp3")); !os.IsNotExist(err) {
		t.Error("Expected no public audio after a failed assembly")
	}

	h = newHarness(t, func(_ *Config, s *Stages) {
		s.NewSynthesizer = func() (tts.Synthesizer, error) { return nil, errors.New("model missing") }
	})
	if _, err := h.pipeline.Generate(context.Background(), items()); err == nil {
		t.Error("Expected synthesizer construction error")
	}
}

func TestGenerateMissingModelIsConfigError(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *Stages) {
		s.NewSynthesizer = func() (tts.Synthesizer, error) {
			return nil, fmt.Errorf("%w: kokoro: model not found", tts.ErrModelMissing)
		}
	})
	_, err := h.pipeline.Generate(context.Background(), items())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	if !errors.Is(err, tts.ErrModelMissing) {
		t.Errorf("Expected the model error to be kept, got %v", err)
	}
	if result := h.pipeline.MaybeGenerate(context.Background(), items()); result != nil {
		t.Errorf("Expected nil for missing model, got %+v", result)
	}
}

type panickingClusterer struct{}

func (panickingClusterer) Cluster(ctx context.Context, items []core.Item) []core.Cluster {
	panic("boom")
}

func TestMaybeGenerateNeverFails(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *Stages) { s.Clusterer = panickingClusterer{} })
	if result := h.pipeline.MaybeGenerate(context.Background(), items()); result != nil {
		t.Errorf("Expected nil after panic, got %+v", result)
	}

	h = newHarness(t, func(c *Config, _ *Stages) { c.HasAPIKey = false })
	if result := h.pipeline.MaybeGenerate(context.Background(), items()); result != nil {
		t.Errorf("Expected nil for missing configuration, got %+v", result)
	}

	h = newHarness(t, nil)
	if result := h.pipeline.MaybeGenerate(context.Background(), items()); result == nil || !result.Generated {
		t.Errorf("Expected generated result, got %+v", result)
	}
}

func TestShouldGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.mp3")
	now := time.Now()

	if !ShouldGenerate(path, 12, now) {
		t.Error("Expected missing audio to generate")
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	old := now.Add(-13 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		hours    float64
		expected bool
	}{
		{0, true},
		{-1, true},
		{12, true},
		{24, false},
	}
	for _, tc := range testCases {
		if got := ShouldGenerate(path, tc.hours, now); got != tc.expected {
			t.Errorf("ShouldGenerate(%v h): expected %v, got %v", tc.hours, tc.expected, got)
		}
	}
}
