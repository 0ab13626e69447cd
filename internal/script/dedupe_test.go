package script

import (
	"briefcast/internal/core"
	"briefcast/internal/llm"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// MockLLMClient implements llm.TextGenerator for testing
type MockLLMClient struct {
	response string
	err      error
	prompts  []string
	options  []llm.TextGenerationOptions
}

func (m *MockLLMClient) GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, options)
	return m.response, m.err
}

func sampleScript() []core.Segment {
	return []core.Segment{
		{Text: "intro"},
		{Text: "story one", Chapter: &core.ChapterInfo{Title: "One"}},
		{Text: "story one again", Chapter: &core.ChapterInfo{Title: "One bis"}},
		{Text: "story two", Chapter: &core.ChapterInfo{Title: "Two"}},
		{Text: "outro"},
	}
}

func TestDedupeFailOpen(t *testing.T) {
	testCases := []struct {
		name     string
		response string
		err      error
	}{
		{"api error", "", fmt.Errorf("timeout")},
		{"not json", "I removed the duplicates.", nil},
		{"empty keep ids", `{"keep_ids": []}`, nil},
		{"no known key", `{"ids": [0, 1]}`, nil},
		{"non numeric ids", `{"keep_ids": ["a", null]}`, nil},
		{"ids out of range", `{"keep_ids": [42]}`, nil},
		{"items without ids", `{"items": [{"text": "x"}]}`, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &MockLLMClient{response: tc.response, err: tc.err}
			input := sampleScript()
			got := NewDeduplicator(mock, DefaultDedupeOptions()).Dedupe(context.Background(), input)
			if !reflect.DeepEqual(got, input) {
				t.Errorf("Expected identity, got %+v", got)
			}
		})
	}
}

func TestDedupeSkipsSmallOrDisabled(t *testing.T) {
	mock := &MockLLMClient{response: `{"keep_ids":[0]}`}

	short := []core.Segment{{Text: "a"}, {Text: "b"}}
	if got := NewDeduplicator(mock, DefaultDedupeOptions()).Dedupe(context.Background(), short); !reflect.DeepEqual(got, short) {
		t.Errorf("Expected short script unchanged, got %+v", got)
	}

	sparse := []core.Segment{{Text: "a"}, {Text: " "}, {Text: "b"}}
	if got := NewDeduplicator(mock, DefaultDedupeOptions()).Dedupe(context.Background(), sparse); !reflect.DeepEqual(got, sparse) {
		t.Errorf("Expected script with fewer than 3 non-empty lines unchanged, got %+v", got)
	}

	opts := DefaultDedupeOptions()
	opts.Enabled = false
	full := sampleScript()
	if got := NewDeduplicator(mock, opts).Dedupe(context.Background(), full); !reflect.DeepEqual(got, full) {
		t.Errorf("Expected disabled dedupe to return input, got %+v", got)
	}

	if len(mock.prompts) != 0 {
		t.Errorf("Expected no requests, got %d", len(mock.prompts))
	}
}

func TestDedupeKeepIDs(t *testing.T) {
	mock := &MockLLMClient{response: "```json\n{\"keep_ids\": [4, \"0\", 1, 3.0]}\n```"}
	got := NewDeduplicator(mock, DefaultDedupeOptions()).Dedupe(context.Background(), sampleScript())

	var texts []string
	for _, s := range got {
		texts = append(texts, s.Text)
	}
	if !reflect.DeepEqual(texts, []string{"intro", "story one", "story two", "outro"}) {
		t.Errorf("Expected kept segments in original order, got %v", texts)
	}
	if got[1].Chapter == nil || got[1].Chapter.Title != "One" {
		t.Errorf("Expected chapter preserved, got %+v", got[1].Chapter)
	}

	prompt := mock.prompts[0]
	idx := strings.Index(prompt, "\n数据: ")
	if idx < 0 {
		t.Fatalf("Expected data separator in prompt %q", prompt)
	}
	var sent []map[string]any
	if err := json.Unmarshal([]byte(prompt[idx+len("\n数据: "):]), &sent); err != nil {
		t.Fatalf("Expected JSON list after separator: %v", err)
	}
	if len(sent) != 5 || sent[2]["id"] != float64(2) {
		t.Errorf("Unexpected request items: %v", sent)
	}
	if mock.options[0].Temperature != 0.1 {
		t.Errorf("Expected temperature 0.1, got %v", mock.options[0].Temperature)
	}
}

func TestDedupeItemsWithRewrites(t *testing.T) {
	mock := &MockLLMClient{response: `{"items":[{"id":0,"text":"欢迎\n收听"},{"id":1},{"id":"3","text":"\u0001\t "},{"id":4,"text":""}]}`}
	got := NewDeduplicator(mock, DefaultDedupeOptions()).Dedupe(context.Background(), sampleScript())

	expected := []string{"欢迎 收听", "story one", DefaultFallbackSentence, "outro"}
	if len(got) != len(expected) {
		t.Fatalf("Expected %d segments, got %+v", len(expected), got)
	}
	for i, s := range got {
		if s.Text != expected[i] {
			t.Errorf("Segment %d: expected %q, got %q", i, expected[i], s.Text)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("  a\x00b\r\n\tc   d \x7f"); got != "a b c d" {
		t.Errorf("Unexpected sanitized text %q", got)
	}
}
