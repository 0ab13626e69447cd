package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject returns the first balanced {...} object in text. Braces
// inside string literals are ignored. An opening brace that is never closed
// is skipped and the search resumes at the next one. It returns "" when no
// complete object is found.
func ExtractJSONObject(text string) string {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := objectEnd(text, start); end > 0 {
			return text[start:end]
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}

// objectEnd returns the index just past the brace that closes the object
// opened at start, or -1 when the object never closes.
func objectEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// DecodeJSONObject extracts the first JSON object from text and unmarshals
// it into v.
func DecodeJSONObject(text string, v any) error {
	raw := ExtractJSONObject(text)
	if raw == "" {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}
