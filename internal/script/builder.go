// Package script assembles and cleans up the spoken briefing script.
package script

import (
	"briefcast/internal/core"
	"math"
	"sort"
	"strings"
)

const (
	// DefaultIntro opens every briefing.
	DefaultIntro = "欢迎来到今日的热点简报。"
	// DefaultOutro closes every briefing.
	DefaultOutro = "以上是今天的热点简报，本播报来源于公开信息，内容可能需要核实。"
	// DefaultChapterTitle labels a chapter whose summary has no title.
	DefaultChapterTitle = "事件更新"
)

// highPriorityShare is the fraction of stories read with their long summary.
const highPriorityShare = 0.3

// BuilderOptions sets the fixed lines of the script.
type BuilderOptions struct {
	Intro        string
	Outro        string
	ChapterTitle string
}

// DefaultBuilderOptions returns the stock intro, outro and chapter label.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Intro:        DefaultIntro,
		Outro:        DefaultOutro,
		ChapterTitle: DefaultChapterTitle,
	}
}

// Builder orders summaries into intro, story and outro segments.
type Builder struct {
	opts BuilderOptions
}

// NewBuilder creates a builder. Blank options fall back to the defaults.
func NewBuilder(opts BuilderOptions) *Builder {
	defaults := DefaultBuilderOptions()
	if strings.TrimSpace(opts.Intro) == "" {
		opts.Intro = defaults.Intro
	}
	if strings.TrimSpace(opts.Outro) == "" {
		opts.Outro = defaults.Outro
	}
	if strings.TrimSpace(opts.ChapterTitle) == "" {
		opts.ChapterTitle = defaults.ChapterTitle
	}
	return &Builder{opts: opts}
}

// Build returns the script for summaries, or nil when there are none.
// Summaries are ordered by priority, highest first, keeping input order on
// ties. The top 30% (at least one) are read in full, the rest in short form.
func (b *Builder) Build(summaries []core.Summary) []core.Segment {
	if len(summaries) == 0 {
		return nil
	}

	sorted := make([]core.Summary, len(summaries))
	copy(sorted, summaries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriorityScore > sorted[j].PriorityScore
	})

	highCount := int(math.Ceil(float64(len(sorted)) * highPriorityShare))
	if highCount < 1 {
		highCount = 1
	}

	segments := []core.Segment{{Text: b.opts.Intro}}
	for i, s := range sorted {
		text := s.ShortSummary
		if i < highCount {
			text = s.Summary
		}
		if text == "" {
			text = firstNonEmpty(s.Summary, s.ShortSummary, s.Title)
		}
		if text == "" {
			continue
		}

		title := s.Title
		if title == "" {
			title = b.opts.ChapterTitle
		}
		sources := s.Sources
		if sources == nil {
			sources = []string{}
		}
		segments = append(segments, core.Segment{
			Text:    text,
			Chapter: &core.ChapterInfo{Title: title, Sources: sources},
		})
	}
	segments = append(segments, core.Segment{Text: b.opts.Outro})

	return segments
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
