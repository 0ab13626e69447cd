// Package summarize turns headline clusters into structured story digests.
package summarize

import (
	"briefcast/internal/core"
	"briefcast/internal/llm"
	"briefcast/internal/logger"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Options configures the summarizer.
type Options struct {
	Prompt      string
	Model       string // empty uses the client's default
	Temperature float32
}

// DefaultOptions returns the stock prompt and temperature.
func DefaultOptions() Options {
	return Options{
		Prompt:      DefaultSummaryPrompt,
		Temperature: 0.3,
	}
}

// Summarizer sends one request per cluster to a text generator.
type Summarizer struct {
	llm  llm.TextGenerator
	opts Options
}

// NewSummarizer creates a summarizer. A blank prompt falls back to
// DefaultSummaryPrompt.
func NewSummarizer(generator llm.TextGenerator, opts Options) *Summarizer {
	if strings.TrimSpace(opts.Prompt) == "" {
		opts.Prompt = DefaultSummaryPrompt
	}
	opts.Prompt = strings.TrimSpace(opts.Prompt)
	return &Summarizer{llm: generator, opts: opts}
}

// Payload is the bounded description of a cluster sent to the model.
type Payload struct {
	SampleTitle string        `json:"sample_title"`
	Sources     []string      `json:"sources"`
	Stats       PayloadStats  `json:"stats"`
	Items       []PayloadItem `json:"items"`
}

// PayloadStats aggregates ranking information across the cluster.
type PayloadStats struct {
	MinRank     int `json:"min_rank"`
	MaxRank     int `json:"max_rank"`
	TotalCount  int `json:"total_count"`
	SourceCount int `json:"source_count"`
}

// PayloadItem is one representative headline.
type PayloadItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// BuildPayload describes a cluster: at most six items with 300 rune
// snippets, the distinct sources and rank statistics. Items without ranks
// count as rank 999 for the minimum and 0 for the maximum. Counts are summed
// as given; the report loader has already defaulted absent counts to 1.
func BuildPayload(items []core.Item) Payload {
	sourceSet := make(map[string]bool)
	for _, item := range items {
		if item.Source != "" {
			sourceSet[item.Source] = true
		}
	}
	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	p := Payload{
		Sources: sources,
		Stats: PayloadStats{
			MinRank:     999,
			MaxRank:     0,
			SourceCount: len(sources),
		},
		Items: []PayloadItem{},
	}

	for _, item := range items {
		if p.SampleTitle == "" && item.Title != "" {
			p.SampleTitle = item.Title
		}

		itemMin, itemMax := 999, 0
		for i, r := range item.Ranks {
			if i == 0 || r < itemMin {
				itemMin = r
			}
			if i == 0 || r > itemMax {
				itemMax = r
			}
		}
		if itemMin < p.Stats.MinRank {
			p.Stats.MinRank = itemMin
		}
		if itemMax > p.Stats.MaxRank {
			p.Stats.MaxRank = itemMax
		}

		p.Stats.TotalCount += item.Count
	}

	for i, item := range items {
		if i >= maxPayloadItems {
			break
		}
		p.Items = append(p.Items, PayloadItem{
			Title:   item.Title,
			Snippet: truncateRunes(item.Content, maxSnippetRunes),
			Source:  item.Source,
		})
	}

	return p
}

// Summarize produces the summary for one cluster. Any generation or parse
// failure is returned as an error and the caller drops the cluster.
func (s *Summarizer) Summarize(ctx context.Context, cluster core.Cluster) (*core.Summary, error) {
	if len(cluster.Items) == 0 {
		return nil, fmt.Errorf("cluster has no items")
	}

	payload := BuildPayload(cluster.Items)
	data, err := marshalUnescaped(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	response, err := s.llm.GenerateText(ctx, s.opts.Prompt+payloadSeparator+data, llm.TextGenerationOptions{
		Temperature: s.opts.Temperature,
		Model:       s.opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	var fields map[string]any
	if err := llm.DecodeJSONObject(strings.TrimSpace(response), &fields); err != nil {
		return nil, err
	}

	summary := &core.Summary{
		Title:         stringField(fields, "title"),
		Summary:       stringField(fields, "summary"),
		ShortSummary:  stringField(fields, "short_summary"),
		PriorityScore: floatField(fields, "priority_score"),
		Sources:       payload.Sources,
	}
	if summary.Title == "" {
		summary.Title = payload.SampleTitle
	}
	if summary.ShortSummary == "" {
		summary.ShortSummary = summary.Summary
	}
	return summary, nil
}

// SummarizeAll summarizes every cluster in order, dropping the ones that fail.
func (s *Summarizer) SummarizeAll(ctx context.Context, clusters []core.Cluster) []core.Summary {
	beat := logger.NewHeartbeat("summarize", 0)
	var summaries []core.Summary
	for i, cluster := range clusters {
		if len(cluster.Items) == 0 {
			continue
		}
		summary, err := s.Summarize(ctx, cluster)
		if err != nil {
			logger.Debug("Cluster dropped", "title", cluster.Items[0].Title, "error", err.Error())
			continue
		}
		summaries = append(summaries, *summary)
		beat.Tick("Summarizing clusters", "done", i+1, "total", len(clusters))
	}
	return summaries
}

func marshalUnescaped(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// floatField accepts a JSON number or a numeric string and defaults to 0.
func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
