package tts

import (
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

// Prober measures the length of audio files.
type Prober struct {
	ffprobe string
	runner  CommandRunner
}

// NewProber creates a prober. An empty path means "ffprobe" on PATH.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobe: ffprobePath, runner: ExecRunner{}}
}

// WithRunner returns a copy of the prober that runs commands through runner.
func (p *Prober) WithRunner(runner CommandRunner) *Prober {
	return &Prober{ffprobe: p.ffprobe, runner: runner}
}

// Duration returns the length of path in seconds, or 0 when it cannot be
// measured. ffprobe is tried first, then the WAV header.
func (p *Prober) Duration(ctx context.Context, path string) float64 {
	if d := p.ffprobeDuration(ctx, path); d > 0 {
		return d
	}
	if d := wavDuration(path); d > 0 {
		return d
	}
	return 0
}

// Durations measures each path and falls back to a text estimate for any
// segment that could not be measured.
func (p *Prober) Durations(ctx context.Context, paths []string, segments []core.Segment) []float64 {
	durations := make([]float64, len(segments))
	for i, seg := range segments {
		if i < len(paths) {
			durations[i] = p.Duration(ctx, paths[i])
		}
		if durations[i] <= 0 {
			durations[i] = EstimateDuration(seg.Text)
		}
	}
	return durations
}

func (p *Prober) ffprobeDuration(ctx context.Context, path string) float64 {
	if p.runner == nil {
		return 0
	}
	stdout, _, err := p.runner.Run(ctx, "", p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	)
	if err != nil {
		logger.Debug("ffprobe failed", "path", path, "error", err.Error())
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func wavDuration(path string) float64 {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return 0
	}
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0
	}
	d, err := dec.Duration()
	if err != nil {
		return 0
	}
	return d.Seconds()
}
