package script

import (
	"briefcast/internal/core"
	"briefcast/internal/llm"
	"briefcast/internal/logger"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultDedupePrompt asks the model to drop repeated lines and return the
// survivors as JSON.
const DefaultDedupePrompt = `你是文本去重助手，请对输入的新闻播报文本列表去重，只删除重复或明显近似的条目。
要求：
- 保持原始顺序。
- 输出文本应为可朗读内容，避免无意义符号。
- 只返回 JSON，不要多余文本。
- 输出格式: {"items":[{"id":0,"text":"..."}]}`

// DefaultFallbackSentence replaces a kept line that ends up empty.
const DefaultFallbackSentence = "该条新闻无法翻译，建议查看原文。"

// minDedupeSegments is the smallest script worth sending for deduplication.
const minDedupeSegments = 3

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	spacesRe       = regexp.MustCompile(`\s+`)
)

// DedupeOptions configures the deduplicator.
type DedupeOptions struct {
	Enabled     bool
	Prompt      string
	Fallback    string
	Model       string
	Temperature float32
}

// DefaultDedupeOptions returns the stock prompt, fallback and temperature.
func DefaultDedupeOptions() DedupeOptions {
	return DedupeOptions{
		Enabled:     true,
		Prompt:      DefaultDedupePrompt,
		Fallback:    DefaultFallbackSentence,
		Temperature: 0.1,
	}
}

// Deduplicator asks a text generator which script lines to keep. It never
// makes a script worse: on any failure the input is returned unchanged.
type Deduplicator struct {
	llm  llm.TextGenerator
	opts DedupeOptions
}

// NewDeduplicator creates a deduplicator. Blank prompt and fallback options
// use the defaults.
func NewDeduplicator(generator llm.TextGenerator, opts DedupeOptions) *Deduplicator {
	if strings.TrimSpace(opts.Prompt) == "" {
		opts.Prompt = DefaultDedupePrompt
	}
	opts.Prompt = strings.TrimSpace(opts.Prompt)
	if strings.TrimSpace(opts.Fallback) == "" {
		opts.Fallback = DefaultFallbackSentence
	}
	return &Deduplicator{llm: generator, opts: opts}
}

type dedupeItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Dedupe returns the segments the model chose to keep, in their original
// order, with any rewritten text applied.
func (d *Deduplicator) Dedupe(ctx context.Context, segments []core.Segment) []core.Segment {
	if !d.opts.Enabled || d.llm == nil || len(segments) < minDedupeSegments {
		return segments
	}

	var items []dedupeItem
	for i, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			items = append(items, dedupeItem{ID: i, Text: text})
		}
	}
	if len(items) < minDedupeSegments {
		return segments
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return segments
	}
	request := d.opts.Prompt + "\n数据: " + strings.TrimRight(buf.String(), "\n")

	response, err := d.llm.GenerateText(ctx, request, llm.TextGenerationOptions{
		Temperature: d.opts.Temperature,
		Model:       d.opts.Model,
	})
	if err != nil {
		logger.Warn("Dedupe request failed, keeping script", "error", err.Error())
		return segments
	}

	keep, rewrites, err := parseKeepResponse(response)
	if err != nil {
		logger.Warn("Dedupe response unusable, keeping script", "error", err.Error())
		return segments
	}

	var filtered []core.Segment
	for i, s := range segments {
		if !keep[i] {
			continue
		}
		text, ok := rewrites[i]
		if !ok {
			text = s.Text
		}
		text = Sanitize(text)
		if text == "" {
			text = d.opts.Fallback
		}
		filtered = append(filtered, core.Segment{Text: text, Chapter: s.Chapter})
	}
	if len(filtered) == 0 {
		return segments
	}

	if len(filtered) != len(segments) {
		logger.Info("Dedupe removed script lines", "kept", len(filtered), "total", len(segments))
	}
	return filtered
}

// parseKeepResponse reads either {"keep_ids": [...]} or
// {"items": [{"id": .., "text": ..}]}. It fails when no usable id is found.
func parseKeepResponse(response string) (map[int]bool, map[int]string, error) {
	var data map[string]any
	if err := llm.DecodeJSONObject(response, &data); err != nil {
		return nil, nil, err
	}

	var ids []any
	rewrites := make(map[int]string)

	if raw, ok := data["keep_ids"].([]any); ok {
		ids = raw
	} else if raw, ok := data["items"].([]any); ok {
		for _, entry := range raw {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			ids = append(ids, obj["id"])
			text := textValue(obj["text"])
			if text == "" {
				continue
			}
			if id, ok := toInt(obj["id"]); ok {
				rewrites[id] = text
			}
		}
	}

	keep := make(map[int]bool)
	for _, v := range ids {
		if id, ok := toInt(v); ok {
			keep[id] = true
		}
	}
	if len(keep) == 0 {
		return nil, nil, fmt.Errorf("no ids to keep in response")
	}
	return keep, rewrites, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Sanitize replaces control characters with spaces, collapses whitespace
// and trims the result.
func Sanitize(text string) string {
	cleaned := controlCharsRe.ReplaceAllString(text, " ")
	cleaned = spacesRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
