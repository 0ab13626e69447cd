package tts

import (
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// engine generates raw samples for one piece of text
type engine interface {
	Generate(text string) (samples []float32, sampleRate int)
	Close()
}

// NeuralSynthesizer voices segments with an in-process neural model and
// writes one WAV file per segment.
type NeuralSynthesizer struct {
	name   string
	engine engine
}

// NewNeuralSynthesizer wraps an engine under a provider name used in logs
func NewNeuralSynthesizer(name string, e engine) *NeuralSynthesizer {
	return &NeuralSynthesizer{name: name, engine: e}
}

// Synthesize voices every segment. Blank segments and segments that yield no
// samples are skipped.
// Durations are exact: sample count over sample rate.
func (n *NeuralSynthesizer) Synthesize(ctx context.Context, segments []core.Segment, dir string) (*Output, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	out := &Output{}
	heartbeat := logger.NewHeartbeat("tts", 0)
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		samples, rate := n.engine.Generate(text)
		if len(samples) == 0 || rate <= 0 {
			logger.Warn("Engine produced no audio", "provider", n.name, "segment", i)
			continue
		}

		path := filepath.Join(dir, segmentName(i, ".wav"))
		if err := WriteWAV(path, samples, rate); err != nil {
			logger.Warn("Failed to write segment", "provider", n.name, "segment", i, "error", err.Error())
			continue
		}

		out.Paths = append(out.Paths, path)
		out.Segments = append(out.Segments, seg)
		out.Durations = append(out.Durations, float64(len(samples))/float64(rate))
		heartbeat.Tick("Synthesizing segments", "done", i+1, "total", len(segments))
	}
	return out, nil
}

// Close releases the model
func (n *NeuralSynthesizer) Close() {
	if n.engine != nil {
		n.engine.Close()
	}
}
