package handlers

import (
	"briefcast/internal/config"
	"briefcast/internal/core"
	"briefcast/internal/pipeline"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	var (
		force    bool
		noFetch  bool
		provider string
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "generate [report]",
		Short: "Generate the audio briefing",
		Long: `Generate the chaptered audio briefing from a headline report.

The report is a JSON or YAML file with one stat block per keyword. Without a
report argument, report.path from the configuration is used, then
report.feeds.

A briefing younger than audio.interval_hours is reused unless --force is set.

Examples:
  briefcast generate output/report.json
  briefcast generate --force --provider kokoro`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if force {
				cfg.Audio.IntervalHours = 0
			}
			if noFetch {
				cfg.Fetch.Enabled = false
			}
			if provider != "" {
				cfg.TTS.Provider = strings.ToLower(provider)
			}
			if endpoint != "" {
				cfg.TTS.Endpoint = endpoint
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			result, err := runGenerate(cmd.Context(), cfg, path)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Regenerate even when a recent briefing exists")
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Skip fetching article bodies")
	cmd.Flags().StringVar(&provider, "provider", "", "TTS provider: http, sherpa_onnx, kokoro, voxcpm_onnx, hf_space")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "TTS endpoint (overrides tts.endpoint)")

	return cmd
}

func runGenerate(ctx context.Context, cfg *config.Config, path string) (*core.AudioResult, error) {
	items, err := loadItems(ctx, cfg, path)
	if err != nil {
		return nil, err
	}

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := p.Generate(ctx, items)
	if errors.Is(err, pipeline.ErrDisabled) {
		return nil, fmt.Errorf("audio briefing is disabled (audio.enabled=false)")
	}
	return result, err
}

func printResult(result *core.AudioResult) {
	status := successStyle.Render("generated")
	if !result.Generated {
		status = warnStyle.Render("reused recent briefing")
	}

	lines := []string{
		titleStyle.Render("Audio briefing"),
		field("Status", status),
		field("Audio", result.AudioPath),
		field("Chapters", result.ChaptersPath),
		field("Transcript", result.TranscriptPath),
	}
	if !result.GeneratedAt.IsZero() {
		lines = append(lines, field("Generated at", result.GeneratedAt.Format("2006-01-02 15:04:05")))
	}
	fmt.Println(boxStyle.Render(strings.Join(lines, "\n")))
}
