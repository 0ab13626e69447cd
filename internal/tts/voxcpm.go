package tts

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	voxcpmBatchAudio  = "voxcpm_batch.wav"
	voxcpmBatchConfig = "voxcpm_batch.json"
)

// SubprocessSynthesizer drives an external inference script through a JSON
// request file.
type SubprocessSynthesizer struct {
	runner  CommandRunner
	prober  *Prober
	python  string
	infer   string
	baseDir string
	request map[string]any
	batch   bool
	timeout time.Duration
}

// NewSubprocessSynthesizer resolves and validates the script, model
// directories, voices file and voice before any audio is requested.
func NewSubprocessSynthesizer(cfg config.VoxCPMConfig, runner CommandRunner, prober *Prober) (*SubprocessSynthesizer, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("voxcpm: %w", err)
	}
	resolve := func(base, path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(base, path)
	}

	var infer string
	switch {
	case strings.TrimSpace(cfg.InferPath) != "":
		infer = resolve(cwd, strings.TrimSpace(cfg.InferPath))
	case strings.TrimSpace(cfg.RepoDir) != "":
		infer = filepath.Join(resolve(cwd, strings.TrimSpace(cfg.RepoDir)), "infer.py")
	default:
		return nil, fmt.Errorf("%w: voxcpm: infer_path or repo_dir is required", ErrModelMissing)
	}
	baseDir := filepath.Dir(infer)

	pathOr := func(value, fallback string) string {
		if v := strings.TrimSpace(value); v != "" {
			return resolve(cwd, v)
		}
		return filepath.Join(baseDir, fallback)
	}
	modelsDir := pathOr(cfg.ModelsDir, filepath.Join("models", "onnx_models_quantized"))
	voxcpmDir := pathOr(cfg.VoxCPMDir, filepath.Join("models", "VoxCPM1.5"))
	voicesFile := pathOr(cfg.VoicesFile, "voices.json")
	voice := strings.TrimSpace(cfg.Voice)

	if info, err := os.Stat(infer); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: voxcpm: infer script not found: %s", ErrModelMissing, infer)
	}
	if voice == "" {
		return nil, fmt.Errorf("%w: voxcpm: voice is required", ErrModelMissing)
	}
	for name, dir := range map[string]string{"models_dir": modelsDir, "voxcpm_dir": voxcpmDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: voxcpm: %s not found: %s", ErrModelMissing, name, dir)
		}
	}
	if info, err := os.Stat(voicesFile); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: voxcpm: voices_file not found: %s", ErrModelMissing, voicesFile)
	}

	request := map[string]any{
		"models_dir":       modelsDir,
		"voxcpm_dir":       voxcpmDir,
		"voices_file":      voicesFile,
		"voice":            voice,
		"prompt_audio":     nil,
		"prompt_text":      nil,
		"text_normalizer":  cfg.TextNormalizer,
		"audio_normalizer": cfg.AudioNormalizer,
	}
	if cfg.MaxThreads != nil {
		request["max_threads"] = *cfg.MaxThreads
	}
	if cfg.CFGValue != nil {
		request["cfg_value"] = *cfg.CFGValue
	}
	if cfg.FixedTimesteps != nil {
		request["fixed_timesteps"] = *cfg.FixedTimesteps
	}
	if cfg.Seed != nil {
		request["seed"] = *cfg.Seed
	}

	python := strings.TrimSpace(cfg.Python)
	if python == "" {
		python = "python3"
	}

	return &SubprocessSynthesizer{
		runner:  runner,
		prober:  prober,
		python:  python,
		infer:   infer,
		baseDir: baseDir,
		request: request,
		batch:   cfg.BatchMode,
		timeout: timeoutOr(cfg.Timeout, 30*time.Minute),
	}, nil
}

// Synthesize runs the script once for the whole script in batch mode, or once
// per segment otherwise. Batch durations are estimated from the text.
func (s *SubprocessSynthesizer) Synthesize(ctx context.Context, segments []core.Segment, dir string) (*Output, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}
	if s.batch {
		return s.synthesizeBatch(ctx, segments, dir)
	}

	out := &Output{}
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		audioPath := filepath.Join(dir, segmentName(i, ".wav"))
		configPath := filepath.Join(dir, fmt.Sprintf("voxcpm_config_%03d.json", i))
		if err := s.run(ctx, text, audioPath, configPath); err != nil {
			logger.Warn("Segment synthesis failed", "provider", "voxcpm_onnx", "segment", i, "error", err.Error())
			continue
		}
		out.Paths = append(out.Paths, audioPath)
		out.Segments = append(out.Segments, seg)
	}
	out.Durations = s.prober.Durations(ctx, out.Paths, out.Segments)
	return out, nil
}

func (s *SubprocessSynthesizer) synthesizeBatch(ctx context.Context, segments []core.Segment, dir string) (*Output, error) {
	var texts []string
	var voiced []core.Segment
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			texts = append(texts, text)
			voiced = append(voiced, seg)
		}
	}
	if len(texts) == 0 {
		return &Output{}, nil
	}

	audioPath := filepath.Join(dir, voxcpmBatchAudio)
	if err := s.run(ctx, texts, audioPath, filepath.Join(dir, voxcpmBatchConfig)); err != nil {
		logger.Warn("Batch synthesis failed", "provider", "voxcpm_onnx", "error", err.Error())
		return &Output{}, nil
	}

	durations := make([]float64, len(voiced))
	for i, seg := range voiced {
		durations[i] = EstimateDuration(seg.Text)
	}
	return &Output{Paths: []string{audioPath}, Segments: voiced, Durations: durations}, nil
}

// run writes the request file and executes the script against it
func (s *SubprocessSynthesizer) run(ctx context.Context, text any, audioPath, configPath string) error {
	request := make(map[string]any, len(s.request)+2)
	for k, v := range s.request {
		request[k] = v
	}
	request["text"] = text
	request["output"] = audioPath

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(request); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write request file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout, stderr, err := s.runner.Run(ctx, s.baseDir, s.python, s.infer, "--config", configPath)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		if detail == "" {
			detail = "unknown error"
		}
		return fmt.Errorf("voxcpm inference failed: %w: %s", err, detail)
	}
	if info, err := os.Stat(audioPath); err != nil || info.Size() == 0 {
		return fmt.Errorf("voxcpm inference produced no audio at %s", audioPath)
	}
	return nil
}
