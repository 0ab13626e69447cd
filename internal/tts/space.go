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
	"sort"
	"strings"
	"time"

	sse "github.com/tmaxmax/go-sse"
)

const (
	apiRoute    = "/gradio_api/call"
	legacyRoute = "/call"

	submitTimeout   = 60 * time.Second
	downloadTimeout = 30 * time.Second
	infoTimeout     = 20 * time.Second
)

// SpaceSynthesizer voices segments through a hosted Gradio demo. Each call
// is submitted, then its result is read from an event stream.
type SpaceSynthesizer struct {
	client      *http.Client
	prober      *Prober
	baseURL     string
	apiName     string
	token       string
	promptAudio string
	timeout     time.Duration
}

// NewSpaceSynthesizer resolves the demo base URL from the endpoint
func NewSpaceSynthesizer(cfg config.TTS, client *http.Client, prober *Prober) (*SpaceSynthesizer, error) {
	base, ok := SpaceBaseURL(cfg.Endpoint)
	if !ok {
		return nil, fmt.Errorf("cannot resolve hosted demo from endpoint %q", cfg.Endpoint)
	}
	api := strings.Trim(strings.TrimSpace(cfg.Space.APIName), "/")
	if api == "" {
		api = "gen_single"
	}
	token := strings.TrimSpace(cfg.Space.Token)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	return &SpaceSynthesizer{
		client:      client,
		prober:      prober,
		baseURL:     base,
		apiName:     api,
		token:       token,
		promptAudio: strings.TrimSpace(cfg.Space.PromptAudio),
		timeout:     timeoutOr(cfg.Space.Timeout, 180*time.Second),
	}, nil
}

// Synthesize voices every segment. When the whole run yields nothing the
// older route layout is tried once.
func (s *SpaceSynthesizer) Synthesize(ctx context.Context, segments []core.Segment, dir string) (*Output, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	out := s.synthesizeVia(ctx, apiRoute, segments, dir)
	if len(out.Paths) == 0 && len(segments) > 0 && ctx.Err() == nil {
		logger.Warn("Hosted demo produced no audio, retrying legacy route", "base_url", s.baseURL)
		out = s.synthesizeVia(ctx, legacyRoute, segments, dir)
	}
	out.Durations = s.prober.Durations(ctx, out.Paths, out.Segments)
	return out, nil
}

func (s *SpaceSynthesizer) synthesizeVia(ctx context.Context, route string, segments []core.Segment, dir string) *Output {
	out := &Output{}
	heartbeat := logger.NewHeartbeat("tts", 0)
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result, err := s.call(ctx, route, s.spaceArgs(text))
		if err != nil {
			logger.Warn("Segment synthesis failed", "provider", "hf_space", "segment", i, "error", err.Error())
			continue
		}
		path, err := materialize(ctx, s.client, result, dir, i)
		if err != nil {
			logger.Warn("No audio in hosted demo result", "segment", i, "error", err.Error())
			continue
		}
		out.Paths = append(out.Paths, path)
		out.Segments = append(out.Segments, seg)
		heartbeat.Tick("Synthesizing segments", "done", i+1, "total", len(segments))
	}
	return out
}

// call submits one job and waits for its result
func (s *SpaceSynthesizer) call(ctx context.Context, route string, args []any) (any, error) {
	eventID, err := s.submit(ctx, route, args)
	if err != nil {
		return nil, err
	}
	return s.readEvent(ctx, route, eventID)
}

func (s *SpaceSynthesizer) submit(ctx context.Context, route string, args []any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	jsonData, err := json.Marshal(map[string]any{"data": args})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s/%s", s.baseURL, route, s.apiName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit job: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("hosted demo error %d: %s", resp.StatusCode, string(body))
	}

	var submitted struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if submitted.EventID == "" {
		return "", fmt.Errorf("submit response has no event_id")
	}
	return submitted.EventID, nil
}

// readEvent follows the event stream until a complete or error event
func (s *SpaceSynthesizer) readEvent(ctx context.Context, route, eventID string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := fmt.Sprintf("%s%s/%s/%s", s.baseURL, route, s.apiName, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event stream error %d", resp.StatusCode)
	}
	return parseEventStream(resp.Body)
}

func (s *SpaceSynthesizer) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func (s *SpaceSynthesizer) spaceArgs(text string) []any {
	args := defaultSpaceArgs(text)
	if s.promptAudio != "" {
		ref := map[string]any{"path": s.promptAudio, "meta": map[string]any{"_type": "gradio.FileData"}}
		if strings.HasPrefix(s.promptAudio, "http") {
			ref["url"] = s.promptAudio
		}
		args[1] = ref
	}
	return args
}

// parseEventStream returns the JSON payload of the first "complete" event.
// An "error" event ends the stream with an error.
func parseEventStream(r io.Reader) (any, error) {
	for event, err := range sse.Read(r, nil) {
		if err != nil {
			return nil, fmt.Errorf("error reading event stream: %w", err)
		}
		switch event.Type {
		case "complete":
			var result any
			if err := json.Unmarshal([]byte(event.Data), &result); err != nil {
				return nil, fmt.Errorf("failed to decode result: %w", err)
			}
			return result, nil
		case "error":
			return nil, fmt.Errorf("hosted demo reported an error: %s", strings.TrimSpace(event.Data))
		}
	}
	return nil, fmt.Errorf("event stream ended without a result")
}

// defaultSpaceArgs fills the positional inputs of the gen_single endpoint:
// emotion control, prompt audio, text, emotion reference and weight, eight
// emotion vector weights, emotion text, random flag, then sampling settings.
func defaultSpaceArgs(text string) []any {
	return []any{
		"Same as the voice reference",
		nil,
		text,
		nil,
		0.8,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		"",
		false,
		120,
		true,
		0.8,
		30,
		0.8,
		0.0,
		3,
		10.0,
		1500,
	}
}

// IsSpaceEndpoint reports whether provider or endpoint points at a hosted
// demo rather than a plain speech API.
func IsSpaceEndpoint(provider, endpoint string) bool {
	if p, err := ResolveProvider(provider); err == nil && p == ProviderSpace {
		return true
	}
	endpoint = strings.TrimSpace(endpoint)
	switch {
	case endpoint == "":
		return false
	case strings.HasPrefix(endpoint, "hf://"):
		return true
	case strings.HasPrefix(endpoint, "http"):
		return strings.Contains(endpoint, "hf.space") || strings.Contains(endpoint, "huggingface.co/spaces")
	default:
		return strings.Contains(endpoint, "/")
	}
}

// SpaceBaseURL maps "owner/name", "hf://owner/name", a huggingface.co/spaces
// page or a *.hf.space URL onto the demo's base URL.
func SpaceBaseURL(endpoint string) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false
	}

	var space string
	if strings.HasPrefix(endpoint, "http") {
		if strings.Contains(endpoint, "hf.space") {
			return strings.TrimRight(endpoint, "/"), true
		}
		_, after, found := strings.Cut(endpoint, "huggingface.co/spaces/")
		if !found {
			return "", false
		}
		space = strings.Trim(after, "/")
	} else {
		space = strings.TrimPrefix(endpoint, "hf://")
	}

	owner, name, found := strings.Cut(space, "/")
	if !found {
		return "", false
	}
	slug := strings.ReplaceAll(strings.ToLower(owner+"-"+name), " ", "-")
	return "https://" + slug + ".hf.space", true
}

// Probe lists the named endpoints a hosted demo exposes.
func Probe(ctx context.Context, client *http.Client, endpoint string) ([]string, error) {
	base, ok := SpaceBaseURL(endpoint)
	if !ok {
		return nil, fmt.Errorf("invalid hosted demo name or URL: %q", endpoint)
	}
	return namedEndpoints(ctx, client, base)
}

func namedEndpoints(ctx context.Context, client *http.Client, base string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/gradio_api/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch API info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API info error %d", resp.StatusCode)
	}

	var info struct {
		NamedEndpoints map[string]json.RawMessage `json:"named_endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode API info: %w", err)
	}

	names := make([]string, 0, len(info.NamedEndpoints))
	for name := range info.NamedEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// materialize stores the audio referenced by a demo result as
// segment_NNN<ext> in dir. URLs are downloaded, local files copied.
func materialize(ctx context.Context, client *http.Client, result any, dir string, index int) (string, error) {
	candidates := audioCandidates(result)
	if len(candidates) == 0 {
		return "", fmt.Errorf("result holds no audio reference")
	}

	for _, candidate := range candidates {
		path := filepath.Join(dir, segmentName(index, guessExtension(candidate)))
		if strings.HasPrefix(candidate, "http") {
			if err := download(ctx, client, candidate, path); err != nil {
				logger.Debug("Audio download failed", "url", candidate, "error", err.Error())
				continue
			}
			return path, nil
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			if err := copyFile(candidate, path); err != nil {
				return "", err
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("no reachable audio in %v", candidates)
}

// audioCandidates unwraps {"value": ...}, takes the first usable element of
// a list and reads path, name and url from an object, in that order.
func audioCandidates(result any) []string {
	if obj, ok := result.(map[string]any); ok {
		if value, ok := obj["value"]; ok {
			result = value
		}
	}

	if list, ok := result.([]any); ok {
		var first any
		for _, elem := range list {
			if _, ok := elem.(string); ok {
				first = elem
				break
			}
			if _, ok := elem.(map[string]any); ok {
				first = elem
				break
			}
		}
		if first == nil {
			return nil
		}
		if obj, ok := first.(map[string]any); ok {
			if value, ok := obj["value"]; ok {
				first = value
			}
		}
		result = first
	}

	switch v := result.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case map[string]any:
		var out []string
		for _, key := range []string{"path", "name", "url"} {
			if s, ok := v[key].(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func guessExtension(candidate string) string {
	lower := strings.ToLower(candidate)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".wav", ".mp3", ".flac", ".m4a"} {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ".wav"
}

func download(ctx context.Context, client *http.Client, url, path string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio download error %d", resp.StatusCode)
	}
	return writeBody(resp.Body, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()
	return writeBody(in, dst)
}
