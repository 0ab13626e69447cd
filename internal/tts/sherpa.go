package tts

import (
	"briefcast/internal/config"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

type sherpaEngine struct {
	tts          *sherpa.OfflineTts
	sid          int
	speed        float32
	fallbackRate int
}

func (e *sherpaEngine) Generate(text string) ([]float32, int) {
	generated := e.tts.Generate(text, e.sid, e.speed)
	if generated == nil {
		return nil, 0
	}
	rate := generated.SampleRate
	if rate <= 0 {
		rate = e.fallbackRate
	}
	return generated.Samples, rate
}

func (e *sherpaEngine) Close() {
	if e.tts != nil {
		sherpa.DeleteOfflineTts(e.tts)
		e.tts = nil
	}
}

// newMatchaEngine loads a Matcha acoustic model plus vocoder
func newMatchaEngine(cfg config.SherpaConfig) (*sherpaEngine, error) {
	acoustic := resolveModelPath(cfg.ModelDir, cfg.AcousticModel)
	vocoder := resolveModelPath(cfg.ModelDir, cfg.Vocoder)
	tokens := resolveModelPath(cfg.ModelDir, cfg.Tokens)
	if err := requireFiles(map[string]string{"acoustic model": acoustic, "vocoder": vocoder, "tokens": tokens}); err != nil {
		return nil, fmt.Errorf("%w: sherpa_onnx: %w", ErrModelMissing, err)
	}

	var fsts []string
	for _, part := range strings.Split(cfg.RuleFsts, ",") {
		if part = strings.TrimSpace(part); part != "" {
			fsts = append(fsts, resolveModelPath(cfg.ModelDir, part))
		}
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	threads := cfg.NumThreads
	if threads <= 0 {
		threads = 2
	}

	ttsConfig := sherpa.OfflineTtsConfig{}
	ttsConfig.Model.Matcha.AcousticModel = acoustic
	ttsConfig.Model.Matcha.Vocoder = vocoder
	ttsConfig.Model.Matcha.Tokens = tokens
	ttsConfig.Model.Matcha.Lexicon = resolveModelPath(cfg.ModelDir, cfg.Lexicon)
	ttsConfig.Model.Matcha.DataDir = resolveModelPath(cfg.ModelDir, cfg.DataDir)
	ttsConfig.Model.Matcha.NoiseScale = 0.667
	ttsConfig.Model.Matcha.LengthScale = 1.0
	ttsConfig.Model.NumThreads = threads
	ttsConfig.Model.Provider = provider
	ttsConfig.RuleFsts = strings.Join(fsts, ",")
	ttsConfig.MaxNumSentences = cfg.MaxNumSentences

	return &sherpaEngine{
		tts:   sherpa.NewOfflineTts(&ttsConfig),
		sid:   cfg.SID,
		speed: speedOr(cfg.Speed),
	}, nil
}

// newKokoroEngine loads a Kokoro model and its voice bank
func newKokoroEngine(cfg config.KokoroConfig) (*sherpaEngine, error) {
	model := resolveModelPath(cfg.ModelDir, cfg.Model)
	voices := resolveModelPath(cfg.ModelDir, cfg.Voices)
	tokens := resolveModelPath(cfg.ModelDir, cfg.Tokens)
	if err := requireFiles(map[string]string{"model": model, "voices": voices, "tokens": tokens}); err != nil {
		return nil, fmt.Errorf("%w: kokoro: %w", ErrModelMissing, err)
	}

	threads := cfg.NumThreads
	if threads <= 0 {
		threads = 2
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 24000
	}

	ttsConfig := sherpa.OfflineTtsConfig{}
	ttsConfig.Model.Kokoro.Model = model
	ttsConfig.Model.Kokoro.Voices = voices
	ttsConfig.Model.Kokoro.Tokens = tokens
	ttsConfig.Model.Kokoro.Lexicon = resolveModelPath(cfg.ModelDir, cfg.Lexicon)
	ttsConfig.Model.Kokoro.DataDir = resolveModelPath(cfg.ModelDir, cfg.DataDir)
	ttsConfig.Model.Kokoro.LengthScale = 1.0
	ttsConfig.Model.NumThreads = threads
	ttsConfig.Model.Provider = "cpu"

	return &sherpaEngine{
		tts:          sherpa.NewOfflineTts(&ttsConfig),
		sid:          cfg.SID,
		speed:        speedOr(cfg.Speed),
		fallbackRate: rate,
	}, nil
}

// resolveModelPath joins relative paths onto the model directory. Blank
// values stay blank.
func resolveModelPath(modelDir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || modelDir == "" {
		return path
	}
	return filepath.Join(modelDir, path)
}

func requireFiles(files map[string]string) error {
	for name, path := range files {
		if path == "" {
			return fmt.Errorf("%s path is not configured", name)
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%s not found: %s", name, path)
		}
	}
	return nil
}

func speedOr(speed float32) float32 {
	if speed <= 0 {
		return 1.0
	}
	return speed
}
