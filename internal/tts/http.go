package tts

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"briefcast/internal/logger"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// speechRequest is the body posted to a generic speech endpoint
type speechRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

// HTTPSynthesizer posts each segment to a speech endpoint that answers with
// raw audio bytes.
type HTTPSynthesizer struct {
	client   *http.Client
	prober   *Prober
	endpoint string
	apiKey   string
	voice    string
	format   string
	timeout  time.Duration
}

// NewHTTPSynthesizer creates the generic HTTP backend
func NewHTTPSynthesizer(cfg config.TTS, client *http.Client, prober *Prober) *HTTPSynthesizer {
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = "default"
	}
	format := strings.TrimPrefix(strings.TrimSpace(cfg.Format), ".")
	if format == "" {
		format = "mp3"
	}
	return &HTTPSynthesizer{
		client:   client,
		prober:   prober,
		endpoint: cfg.Endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		voice:    voice,
		format:   format,
		timeout:  timeoutOr(cfg.Timeout, 60*time.Second),
	}
}

// Synthesize voices every segment. Blank segments are skipped; failed ones
// are logged and skipped.
func (h *HTTPSynthesizer) Synthesize(ctx context.Context, segments []core.Segment, dir string) (*Output, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	out := &Output{}
	heartbeat := logger.NewHeartbeat("tts", 0)
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		path := filepath.Join(dir, segmentName(i, "."+h.format))
		if err := h.synthesizeOne(ctx, text, path); err != nil {
			logger.Warn("Segment synthesis failed", "provider", "http", "segment", i, "error", err.Error())
			continue
		}
		out.Paths = append(out.Paths, path)
		out.Segments = append(out.Segments, seg)
		heartbeat.Tick("Synthesizing segments", "done", i+1, "total", len(segments))
	}
	out.Durations = h.prober.Durations(ctx, out.Paths, out.Segments)
	return out, nil
}

func (h *HTTPSynthesizer) synthesizeOne(ctx context.Context, text, path string) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	jsonData, err := json.Marshal(speechRequest{Text: text, Voice: h.voice, Format: h.format})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("TTS API error %d: %s", resp.StatusCode, string(body))
	}

	return writeBody(resp.Body, path)
}

// writeBody copies r into a new file at path
func writeBody(r io.Reader, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return file.Close()
}
