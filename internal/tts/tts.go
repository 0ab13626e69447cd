// Package tts voices script segments with one of several text-to-speech
// backends and reports the duration of every voiced segment.
package tts

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Provider names a text-to-speech backend
type Provider string

const (
	ProviderHTTP   Provider = "http"
	ProviderSherpa Provider = "sherpa_onnx"
	ProviderKokoro Provider = "kokoro"
	ProviderVoxCPM Provider = "voxcpm_onnx"
	ProviderSpace  Provider = "hf_space"
)

// providerAliases maps accepted spellings onto canonical providers
var providerAliases = map[string]Provider{
	"":            ProviderHTTP,
	"http":        ProviderHTTP,
	"sherpa_onnx": ProviderSherpa,
	"sherpa":      ProviderSherpa,
	"kokoro":      ProviderKokoro,
	"voxcpm_onnx": ProviderVoxCPM,
	"hf_space":    ProviderSpace,
	"gradio":      ProviderSpace,
	"space":       ProviderSpace,
}

// ErrModelMissing marks a local backend whose model, script or voice files
// are not configured or not on disk.
var ErrModelMissing = errors.New("speech model not available")

// Synthesizer turns segments into audio files inside dir.
type Synthesizer interface {
	Synthesize(ctx context.Context, segments []core.Segment, dir string) (*Output, error)
}

// Output lists the files produced for the segments that were actually voiced.
// Segments and Durations are aligned. Paths may hold a single file when a
// backend voices the whole script at once.
type Output struct {
	Paths     []string
	Segments  []core.Segment
	Durations []float64
}

// Deps carries the shared collaborators of the backends.
type Deps struct {
	HTTPClient *http.Client
	Prober     *Prober
	Runner     CommandRunner
}

// New selects a backend for cfg. An endpoint that looks like a hosted demo
// routes to the space backend regardless of provider.
func New(cfg config.TTS, deps Deps) (Synthesizer, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	if deps.Prober == nil {
		deps.Prober = NewProber("")
	}
	if deps.Runner == nil {
		deps.Runner = ExecRunner{}
	}

	provider, err := ResolveProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderSherpa:
		engine, err := newMatchaEngine(cfg.Sherpa)
		if err != nil {
			return nil, err
		}
		return NewNeuralSynthesizer(string(ProviderSherpa), engine), nil
	case ProviderKokoro:
		engine, err := newKokoroEngine(cfg.Kokoro)
		if err != nil {
			return nil, err
		}
		return NewNeuralSynthesizer(string(ProviderKokoro), engine), nil
	case ProviderVoxCPM:
		synth, err := NewSubprocessSynthesizer(cfg.VoxCPM, deps.Runner, deps.Prober)
		if err != nil {
			return nil, err
		}
		return synth, nil
	}

	if provider == ProviderSpace || IsSpaceEndpoint(cfg.Provider, cfg.Endpoint) {
		synth, err := NewSpaceSynthesizer(cfg, deps.HTTPClient, deps.Prober)
		if err != nil {
			return nil, err
		}
		return synth, nil
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("tts endpoint is required for provider %q", provider)
	}
	return NewHTTPSynthesizer(cfg, deps.HTTPClient, deps.Prober), nil
}

// ResolveProvider maps a configured provider name onto a canonical one.
func ResolveProvider(name string) (Provider, error) {
	provider, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported TTS provider: %s (available: %s)", name, strings.Join(GetAvailableProviders(), ", "))
	}
	return provider, nil
}

// IsLocalProvider reports whether provider runs without a remote endpoint.
func IsLocalProvider(name string) bool {
	provider, err := ResolveProvider(name)
	if err != nil {
		return false
	}
	return provider == ProviderSherpa || provider == ProviderKokoro || provider == ProviderVoxCPM
}

// GetAvailableProviders returns the accepted provider names
func GetAvailableProviders() []string {
	return []string{"http", "sherpa_onnx", "sherpa", "kokoro", "voxcpm_onnx", "hf_space", "gradio", "space"}
}

// EstimateDuration guesses the spoken length of text in seconds.
func EstimateDuration(text string) float64 {
	estimate := float64(utf8.RuneCountInString(text)) / 6.0
	if estimate < 2.0 {
		return 2.0
	}
	return estimate
}

func segmentName(index int, ext string) string {
	return fmt.Sprintf("segment_%03d%s", index, ext)
}

func timeoutOr(value string, fallback time.Duration) time.Duration {
	return config.ParseDuration(value, fallback)
}
