package pipeline

import (
	"briefcast/internal/core"
	"briefcast/internal/history"
	"briefcast/internal/tts"
	"context"
)

// ContentFetcher fills Item.Content for each item in place
type ContentFetcher interface {
	Enrich(ctx context.Context, items []core.Item)
}

// ItemClusterer groups items that describe the same story
type ItemClusterer interface {
	Cluster(ctx context.Context, items []core.Item) []core.Cluster
}

// ClusterSummarizer writes one summary per cluster, dropping failures
type ClusterSummarizer interface {
	SummarizeAll(ctx context.Context, clusters []core.Cluster) []core.Summary
}

// ScriptBuilder orders summaries into spoken segments
type ScriptBuilder interface {
	Build(summaries []core.Summary) []core.Segment
}

// ScriptDeduplicator removes repeated segments. It returns its input on any
// failure.
type ScriptDeduplicator interface {
	Dedupe(ctx context.Context, segments []core.Segment) []core.Segment
}

// SynthesizerFactory creates the speech backend on first use, so a reused
// briefing never loads a model.
type SynthesizerFactory func() (tts.Synthesizer, error)

// AudioAssembler joins segment files into the final briefing
type AudioAssembler interface {
	Assemble(ctx context.Context, paths []string, output string) error
}

// HistoryRecorder stores a row per run
type HistoryRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// AnalyticsTracker reports generated briefings
type AnalyticsTracker interface {
	TrackBriefingGenerated(ctx context.Context, runID string, result *core.AudioResult, stats core.RunStats) error
}
