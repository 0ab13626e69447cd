package tts

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestSpaceBaseURL(t *testing.T) {
	testCases := []struct {
		endpoint string
		expected string
		ok       bool
	}{
		{"IndexTeam/IndexTTS-2-Demo", "https://indexteam-indextts-2-demo.hf.space", true},
		{"hf://Owner/My Space", "https://owner-my-space.hf.space", true},
		{"https://huggingface.co/spaces/Owner/Name/", "https://owner-name.hf.space", true},
		{"https://owner-name.hf.space/", "https://owner-name.hf.space", true},
		{"https://example.com/tts", "", false},
		{"nospace", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		got, ok := SpaceBaseURL(tc.endpoint)
		if ok != tc.ok || got != tc.expected {
			t.Errorf("SpaceBaseURL(%q): expected (%q, %v), got (%q, %v)", tc.endpoint, tc.expected, tc.ok, got, ok)
		}
	}
}

func TestIsSpaceEndpoint(t *testing.T) {
	testCases := []struct {
		provider string
		endpoint string
		expected bool
	}{
		{"gradio", "", true},
		{"", "", false},
		{"", "hf://a/b", true},
		{"", "https://a-b.hf.space", true},
		{"", "https://huggingface.co/spaces/a/b", true},
		{"", "https://example.com/tts", false},
		{"", "owner/name", true},
		{"http", "localhost", false},
	}

	for _, tc := range testCases {
		if got := IsSpaceEndpoint(tc.provider, tc.endpoint); got != tc.expected {
			t.Errorf("IsSpaceEndpoint(%q, %q): expected %v, got %v", tc.provider, tc.endpoint, tc.expected, got)
		}
	}
}

func TestDefaultSpaceArgs(t *testing.T) {
	args := defaultSpaceArgs("你好")
	if len(args) != 24 {
		t.Fatalf("Expected 24 positional inputs, got %d", len(args))
	}
	if args[2] != "你好" || args[1] != nil || args[23] != 1500 {
		t.Errorf("Unexpected argument layout %v", args)
	}
}

func TestParseEventStream(t *testing.T) {
	stream := "event: generating\ndata: null\n\nevent: complete\ndata: [{\"path\": \"/tmp/a.wav\"}]\n\n"
	result, err := parseEventStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Expected result, got %v", err)
	}
	expected := []any{map[string]any{"path": "/tmp/a.wav"}}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Unexpected result %v", result)
	}

	if _, err := parseEventStream(strings.NewReader("event: error\ndata: null\n\n")); err == nil {
		t.Error("Expected error event to fail")
	}
	if _, err := parseEventStream(strings.NewReader("event: heartbeat\ndata: null\n\n")); err == nil {
		t.Error("Expected stream without result to fail")
	}
}

func TestParseEventStreamMultilineData(t *testing.T) {
	stream := "event: complete\ndata: [{\"path\": \"a.wav\",\ndata: \"url\": \"http://x/a.wav\"}]\n\n"
	result, err := parseEventStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Expected data lines joined into one payload, got %v", err)
	}
	expected := []any{map[string]any{"path": "a.wav", "url": "http://x/a.wav"}}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Unexpected result %v", result)
	}
}

func TestParseEventStreamEventsDoNotLeak(t *testing.T) {
	// The event name belongs to the first block only; the second block is a
	// plain message.
	stream := "event: complete\n\ndata: [\"a.wav\"]\n\n"
	if result, err := parseEventStream(strings.NewReader(stream)); err == nil {
		t.Errorf("Expected no result from a nameless data block, got %v", result)
	}
}

func TestAudioCandidates(t *testing.T) {
	testCases := []struct {
		name     string
		result   any
		expected []string
	}{
		{"plain string", "/tmp/a.mp3", []string{"/tmp/a.mp3"}},
		{"value wrapper", map[string]any{"value": "/tmp/b.wav"}, []string{"/tmp/b.wav"}},
		{"list of objects", []any{nil, map[string]any{"path": "/srv/c.wav", "url": "https://x/c.wav"}}, []string{"/srv/c.wav", "https://x/c.wav"}},
		{"list with update wrapper", []any{map[string]any{"value": map[string]any{"url": "https://x/d.flac"}}}, []string{"https://x/d.flac"}},
		{"nothing usable", []any{1.0, true}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := audioCandidates(tc.result); !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestGuessExtension(t *testing.T) {
	if got := guessExtension("https://x/file/a.MP3?download=1"); got != ".mp3" {
		t.Errorf("Expected .mp3, got %q", got)
	}
	if got := guessExtension("/tmp/blob"); got != ".wav" {
		t.Errorf("Expected .wav default, got %q", got)
	}
}

// newSpaceServer serves a demo that answers on route and returns audio by URL
func newSpaceServer(t *testing.T, route string) (*httptest.Server, *int32) {
	var submits int32
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("POST "+route+"/gen_single", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&submits, 1)
		var body struct {
			Data []any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Data) != 24 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": fmt.Sprint(body.Data[2])})
	})
	mux.HandleFunc("GET "+route+"/gen_single/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Expected event-stream accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		if r.PathValue("id") == "bad" {
			_, _ = fmt.Fprint(w, "event: error\ndata: null\n\n")
			return
		}
		_, _ = fmt.Fprintf(w, "event: complete\ndata: [{\"path\": \"/srv/tmp/x.wav\", \"url\": \"%s/file/%s.mp3\"}]\n\n", server.URL, r.PathValue("id"))
	})
	mux.HandleFunc("GET /file/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio:" + r.PathValue("name")))
	})
	server = httptest.NewServer(mux)
	return server, &submits
}

func TestSpaceSynthesizer(t *testing.T) {
	server, _ := newSpaceServer(t, "/gradio_api/call")
	defer server.Close()

	cfg := config.TTS{Provider: "hf_space", Endpoint: "owner/demo", Space: config.SpaceConfig{Token: "hf_x"}}
	synth, err := NewSpaceSynthesizer(cfg, server.Client(), noFFprobe())
	if err != nil {
		t.Fatalf("NewSpaceSynthesizer failed: %v", err)
	}
	if synth.baseURL != "https://owner-demo.hf.space" || synth.apiName != "gen_single" || synth.token != "hf_x" {
		t.Errorf("Unexpected synthesizer settings %+v", synth)
	}
	synth.baseURL = server.URL

	dir := t.TempDir()
	segments := []core.Segment{{Text: "one"}, {Text: "bad"}, {Text: "two"}}
	out, err := synth.Synthesize(context.Background(), segments, dir)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(out.Paths) != 2 {
		t.Fatalf("Expected the error segment to be skipped, got %v", out.Paths)
	}
	if filepath.Base(out.Paths[1]) != "segment_002.mp3" {
		t.Errorf("Unexpected segment path %q", out.Paths[1])
	}
	data, _ := os.ReadFile(out.Paths[1])
	if string(data) != "audio:two.mp3" {
		t.Errorf("Unexpected downloaded content %q", data)
	}
	if len(out.Durations) != 2 {
		t.Errorf("Expected a duration per voiced segment, got %v", out.Durations)
	}
}

func TestSpaceSynthesizerLegacyRoute(t *testing.T) {
	server, submits := newSpaceServer(t, "/call")
	defer server.Close()

	synth := &SpaceSynthesizer{
		client:  server.Client(),
		prober:  noFFprobe(),
		baseURL: server.URL,
		apiName: "gen_single",
		timeout: time.Minute,
	}

	out, err := synth.Synthesize(context.Background(), []core.Segment{{Text: "one"}}, t.TempDir())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(out.Paths) != 1 {
		t.Errorf("Expected legacy route to voice the segment, got %v", out.Paths)
	}
	if atomic.LoadInt32(submits) != 1 {
		t.Errorf("Expected one submit on the legacy route, got %d", *submits)
	}
}

func TestMaterializeCopiesLocalFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "local.flac")
	if err := os.WriteFile(src, []byte("flac"), 0644); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	path, err := materialize(context.Background(), http.DefaultClient, map[string]any{"value": src}, dir, 7)
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	if path != filepath.Join(dir, "segment_007.flac") {
		t.Errorf("Unexpected path %q", path)
	}

	if _, err := materialize(context.Background(), http.DefaultClient, "/does/not/exist.wav", dir, 8); err == nil {
		t.Error("Expected error for unreachable candidate")
	}
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gradio_api/info" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"named_endpoints": {"/gen_single": {}, "/clear": {}}, "unnamed_endpoints": {}}`))
	}))
	defer server.Close()

	names, err := namedEndpoints(context.Background(), server.Client(), server.URL)
	if err != nil {
		t.Fatalf("namedEndpoints failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"/clear", "/gen_single"}) {
		t.Errorf("Unexpected endpoints %v", names)
	}

	if _, err := Probe(context.Background(), server.Client(), "not-a-demo"); err == nil {
		t.Error("Expected error for unresolvable demo name")
	}
}
