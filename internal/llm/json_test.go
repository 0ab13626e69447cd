package llm

import (
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"title\":\"x\"}\n```", `{"title":"x"}`},
		{"nested", `prefix {"a":{"b":2}} suffix`, `{"a":{"b":2}}`},
		{"braces in strings", `{"text":"use } and { freely","n":1}`, `{"text":"use } and { freely","n":1}`},
		{"escaped quote", `{"text":"say \"}\" now"}`, `{"text":"say \"}\" now"}`},
		{"first of two", `{"a":1} and {"b":2}`, `{"a":1}`},
		{"unbalanced", `{"a":1`, ""},
		{"unclosed then object", `note {draft: {"title":"x"}`, `{"title":"x"}`},
		{"stray brace before object", "{ oops\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"none", "no json here", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSONObject(tc.input); got != tc.expected {
				t.Errorf("ExtractJSONObject(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestDecodeJSONObject(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}
	if err := DecodeJSONObject("Sure! {\"title\":\"标题\"}", &out); err != nil {
		t.Fatalf("DecodeJSONObject failed: %v", err)
	}
	if out.Title != "标题" {
		t.Errorf("Expected title 标题, got %q", out.Title)
	}

	if err := DecodeJSONObject("nothing", &out); err == nil {
		t.Error("Expected error when no object is present")
	}
	if err := DecodeJSONObject("{'single': 'quotes'}", &out); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
