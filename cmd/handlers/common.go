package handlers

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"briefcast/internal/history"
	"briefcast/internal/logger"
	"briefcast/internal/observability"
	"briefcast/internal/pipeline"
	"briefcast/internal/report"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// field renders one aligned "label value" line
func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

// loadItems reads the report at path, or the configured report, falling
// back to the configured RSS feeds when there is no report file.
func loadItems(ctx context.Context, cfg *config.Config, path string) ([]core.Item, error) {
	if path == "" {
		path = cfg.Report.Path
	}
	if path != "" {
		data, err := report.Load(path)
		if err != nil {
			return nil, err
		}
		items := data.Flatten()
		logger.Info("Loaded report", "path", path, "keywords", len(data.Keywords()), "items", len(items))
		return items, nil
	}

	if len(cfg.Report.Feeds) == 0 {
		return nil, fmt.Errorf("no report given and no report.feeds configured")
	}
	source := report.NewFeedSource(cfg.Report.Feeds, cfg.Report.FeedLabel, cfg.Report.FeedLimit)
	items := source.Fetch(ctx)
	logger.Info("Loaded feeds", "feeds", len(cfg.Report.Feeds), "items", len(items))
	return items, nil
}

// openHistory opens the run history store, or returns nil when it is
// disabled or unavailable.
func openHistory(cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
	if err != nil {
		logger.Warn("Run history unavailable", "driver", cfg.History.Driver, "error", err.Error())
		return nil
	}
	return store
}

// newAnalytics creates the PostHog client. Failures disable analytics.
func newAnalytics(cfg *config.Config) *observability.PostHogClient {
	client, err := observability.NewPostHogClient(cfg.Observability.PostHog)
	if err != nil {
		logger.Warn("Analytics disabled", "error", err.Error())
		client, _ = observability.NewPostHogClient(config.PostHogConfig{})
	}
	return client
}

func shutdownAnalytics(client *observability.PostHogClient) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Shutdown(ctx); err != nil {
		logger.Warn("Failed to flush analytics", "error", err.Error())
	}
}

// buildPipeline wires a pipeline from configuration. The returned cleanup
// closes history and flushes analytics.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	analytics := newAnalytics(cfg)
	builder := pipeline.NewBuilder(cfg).WithAnalytics(analytics)

	store := openHistory(cfg)
	if store != nil {
		builder.WithHistory(store)
	}

	cleanup := func() {
		if store != nil {
			_ = store.Close()
		}
		shutdownAnalytics(analytics)
	}

	p, err := builder.Build(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// relativeURL turns target into a slash separated path relative to the
// directory of page
func relativeURL(page, target string) string {
	rel, err := filepath.Rel(filepath.Dir(page), target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
