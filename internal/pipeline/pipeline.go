// Package pipeline turns report items into a chaptered audio briefing.
package pipeline

import (
	"briefcast/internal/audio"
	"briefcast/internal/core"
	"briefcast/internal/history"
	"briefcast/internal/logger"
	"briefcast/internal/script"
	"briefcast/internal/tts"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDisabled is returned when audio briefings are switched off
	ErrDisabled = errors.New("audio briefing disabled")
	// ErrConfig marks a missing credential or endpoint
	ErrConfig = errors.New("audio briefing not configured")
	// ErrMissingAPIKey is returned without a generative API key
	ErrMissingAPIKey = fmt.Errorf("%w: gemini API key is missing", ErrConfig)
	// ErrMissingEndpoint is returned for a remote speech provider without an endpoint
	ErrMissingEndpoint = fmt.Errorf("%w: tts endpoint is missing", ErrConfig)

	ErrNoItems     = errors.New("no report items")
	ErrNoSummaries = errors.New("no summaries generated")
	ErrEmptyScript = errors.New("briefing script is empty")
	ErrNoAudio     = errors.New("no segments were synthesized")
)

// Config holds the run settings of the pipeline
type Config struct {
	Enabled            bool
	IntervalHours      float64 // <= 0 regenerates on every run
	OutputDir          string
	PublicDir          string
	Filename           string
	ChaptersFilename   string
	TranscriptFilename string
	Provider           string
	Endpoint           string
	HasAPIKey          bool
	FetchEnabled       bool
}

// DefaultConfig returns the stock output layout
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		IntervalHours:      12,
		OutputDir:          filepath.Join("output", "audio"),
		PublicDir:          "audio",
		Filename:           "latest.mp3",
		ChaptersFilename:   "chapters.json",
		TranscriptFilename: "transcript.txt",
		FetchEnabled:       true,
	}
}

// Stages are the collaborators of a run, in execution order
type Stages struct {
	Fetcher        ContentFetcher
	Clusterer      ItemClusterer
	Summarizer     ClusterSummarizer
	Builder        ScriptBuilder
	Deduplicator   ScriptDeduplicator
	NewSynthesizer SynthesizerFactory
	Assembler      AudioAssembler
}

// Pipeline orchestrates one briefing run
type Pipeline struct {
	stages    Stages
	config    Config
	client    *http.Client
	history   HistoryRecorder
	analytics AnalyticsTracker
	now       func() time.Time
	newRunID  func() string
}

// NewPipeline creates a pipeline. History, analytics and the shared HTTP
// client are optional and set with the With methods.
func NewPipeline(stages Stages, config Config) *Pipeline {
	return &Pipeline{
		stages:   stages,
		config:   config,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// WithHTTPClient sets the client whose idle connections are closed after a run
func (p *Pipeline) WithHTTPClient(client *http.Client) *Pipeline {
	p.client = client
	return p
}

// WithHistory records every run that gets past the reuse check
func (p *Pipeline) WithHistory(recorder HistoryRecorder) *Pipeline {
	p.history = recorder
	return p
}

// WithAnalytics reports every generated briefing
func (p *Pipeline) WithAnalytics(tracker AnalyticsTracker) *Pipeline {
	p.analytics = tracker
	return p
}

type artifactPaths struct {
	outputAudio, publicAudio           string
	outputChapters, publicChapters     string
	outputTranscript, publicTranscript string
}

func (p *Pipeline) paths() artifactPaths {
	c := p.config
	return artifactPaths{
		outputAudio:      filepath.Join(c.OutputDir, c.Filename),
		publicAudio:      filepath.Join(c.PublicDir, c.Filename),
		outputChapters:   filepath.Join(c.OutputDir, c.ChaptersFilename),
		publicChapters:   filepath.Join(c.PublicDir, c.ChaptersFilename),
		outputTranscript: filepath.Join(c.OutputDir, c.TranscriptFilename),
		publicTranscript: filepath.Join(c.PublicDir, c.TranscriptFilename),
	}
}

// MaybeGenerate runs Generate and never fails the caller: errors and panics
// are logged and yield nil.
func (p *Pipeline) MaybeGenerate(ctx context.Context, items []core.Item) (result *core.AudioResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Audio briefing panicked", fmt.Errorf("%v", r))
			result = nil
		}
	}()

	result, err := p.Generate(ctx, items)
	switch {
	case err == nil:
		return result
	case errors.Is(err, ErrDisabled):
		logger.Debug("Audio briefing disabled")
	case errors.Is(err, ErrConfig):
		logger.Warn("Skipping audio briefing", "reason", err.Error())
	default:
		logger.Error("Audio briefing failed", err)
	}
	return nil
}

// Generate produces the briefing or reuses a recent one. A reused briefing
// comes back with Generated false.
func (p *Pipeline) Generate(ctx context.Context, items []core.Item) (*core.AudioResult, error) {
	if !p.config.Enabled {
		return nil, ErrDisabled
	}

	for _, dir := range []string{p.config.OutputDir, p.config.PublicDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	paths := p.paths()

	if reused := p.reuse(paths); reused != nil {
		return reused, nil
	}

	if !p.config.HasAPIKey {
		return nil, ErrMissingAPIKey
	}
	if !tts.IsLocalProvider(p.config.Provider) && p.config.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	if p.client != nil {
		defer p.client.CloseIdleConnections()
	}

	runID := p.newRunID()
	started := p.now()
	stats := core.RunStats{Items: len(items), Provider: p.config.Provider}
	logger.Info("Starting audio briefing", "run_id", runID, "items", len(items))

	result, err := p.run(ctx, runID, items, paths, &stats)
	stats.ElapsedMs = p.now().Sub(started).Milliseconds()
	p.record(ctx, runID, result, stats, err)
	if err != nil {
		return nil, err
	}

	logger.Info("Audio briefing generated",
		"run_id", runID,
		"audio", result.AudioPath,
		"chapters", stats.Chapters,
		"duration_seconds", stats.DurationSeconds,
		"elapsed_ms", stats.ElapsedMs,
	)
	return result, nil
}

// reuse returns the published briefing when every artifact exists and the
// audio is younger than the interval
func (p *Pipeline) reuse(paths artifactPaths) *core.AudioResult {
	for _, path := range []string{paths.publicAudio, paths.publicChapters, paths.publicTranscript} {
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	if ShouldGenerate(paths.publicAudio, p.config.IntervalHours, p.now()) {
		return nil
	}

	var modified time.Time
	if info, err := os.Stat(paths.publicAudio); err == nil {
		modified = info.ModTime()
	}
	logger.Info("Reusing recent audio briefing",
		"interval_hours", p.config.IntervalHours,
		"last_generated", modified.Format("2006-01-02 15:04:05"),
	)
	return &core.AudioResult{
		AudioPath:      paths.publicAudio,
		ChaptersPath:   paths.publicChapters,
		TranscriptPath: paths.publicTranscript,
		Generated:      false,
		GeneratedAt:    modified,
	}
}

func (p *Pipeline) run(ctx context.Context, runID string, items []core.Item, paths artifactPaths, stats *core.RunStats) (*core.AudioResult, error) {
	if p.config.FetchEnabled && p.stages.Fetcher != nil {
		p.stages.Fetcher.Enrich(ctx, items)
	}

	clusters := p.stages.Clusterer.Cluster(ctx, items)
	stats.Clusters = len(clusters)
	logger.Info("Clustered items", "items", len(items), "clusters", len(clusters))

	summaries := p.stages.Summarizer.SummarizeAll(ctx, clusters)
	stats.Summaries = len(summaries)
	if len(summaries) == 0 {
		return nil, ErrNoSummaries
	}

	segments := p.stages.Builder.Build(summaries)
	if len(segments) == 0 {
		return nil, ErrEmptyScript
	}
	if err := writeTranscripts(segments, paths); err != nil {
		return nil, err
	}

	if p.stages.Deduplicator != nil {
		segments = p.stages.Deduplicator.Dedupe(ctx, segments)
		if err := writeTranscripts(segments, paths); err != nil {
			return nil, err
		}
	}
	stats.Segments = len(segments)

	synth, err := p.stages.NewSynthesizer()
	if errors.Is(err, tts.ErrModelMissing) {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	if closer, ok := synth.(interface{ Close() }); ok {
		defer closer.Close()
	}

	segmentDir := filepath.Join(p.config.OutputDir, "segments", runID)
	out, err := synth.Synthesize(ctx, segments, segmentDir)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	if len(out.Paths) == 0 {
		return nil, ErrNoAudio
	}
	stats.Voiced = len(out.Segments)

	if err := p.stages.Assembler.Assemble(ctx, out.Paths, paths.outputAudio); err != nil {
		return nil, fmt.Errorf("failed to assemble audio: %w", err)
	}

	durations := out.Durations
	if len(durations) == 0 {
		durations = make([]float64, len(out.Segments))
		for i, seg := range out.Segments {
			durations[i] = tts.EstimateDuration(seg.Text)
		}
	}
	for _, d := range durations {
		stats.DurationSeconds += d
	}

	chapters := audio.BuildChapters(out.Segments, durations)
	stats.Chapters = len(chapters)
	if err := audio.WriteChapters(chapters, paths.outputChapters); err != nil {
		return nil, err
	}

	if err := copyFile(paths.outputAudio, paths.publicAudio); err != nil {
		return nil, err
	}
	if err := copyFile(paths.outputChapters, paths.publicChapters); err != nil {
		return nil, err
	}

	return &core.AudioResult{
		AudioPath:      paths.publicAudio,
		ChaptersPath:   paths.publicChapters,
		TranscriptPath: paths.publicTranscript,
		Generated:      true,
		GeneratedAt:    p.now(),
	}, nil
}

// record stores the run outcome. Failures here never fail the run.
func (p *Pipeline) record(ctx context.Context, runID string, result *core.AudioResult, stats core.RunStats, runErr error) {
	if p.history != nil {
		if err := p.history.Record(ctx, history.NewRun(runID, result, stats, runErr)); err != nil {
			logger.Warn("Failed to record run history", "run_id", runID, "error", err.Error())
		}
	}
	if p.analytics != nil && runErr == nil && result != nil {
		if err := p.analytics.TrackBriefingGenerated(ctx, runID, result, stats); err != nil {
			logger.Warn("Failed to track briefing", "run_id", runID, "error", err.Error())
		}
	}
}

// ShouldGenerate reports whether the audio at path is older than
// intervalHours. A non-positive interval or a missing file always generates.
func ShouldGenerate(path string, intervalHours float64, now time.Time) bool {
	if intervalHours <= 0 {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	age := now.Sub(info.ModTime())
	return age.Seconds() >= intervalHours*3600
}

func writeTranscripts(segments []core.Segment, paths artifactPaths) error {
	for _, path := range []string{paths.publicTranscript, paths.outputTranscript} {
		if _, err := script.WriteTranscript(segments, path); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
