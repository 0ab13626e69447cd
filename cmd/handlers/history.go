package handlers

import (
	"briefcast/internal/config"
	"briefcast/internal/history"
	"fmt"

	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent briefing runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if !cfg.History.Enabled {
				return fmt.Errorf("run history is disabled (history.enabled=false)")
			}
			store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(warnStyle.Render("No runs recorded yet"))
				return nil
			}

			fmt.Println(titleStyle.Render(fmt.Sprintf("Last %d runs (%s)", len(runs), store.Driver())))
			for _, run := range runs {
				fmt.Println(formatRun(run))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func formatRun(run history.Run) string {
	status := successStyle.Render("ok    ")
	detail := fmt.Sprintf("%d items, %d chapters, %.0fs audio", run.Stats.Items, run.Stats.Chapters, run.Stats.DurationSeconds)
	if run.Stats.Provider != "" {
		detail += " via " + run.Stats.Provider
	}
	if run.Error != "" {
		status = errorStyle.Render("failed")
		detail = run.Error
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		labelStyle.Render(run.CreatedAt.Local().Format("01-02 15:04")),
		status,
		valueStyle.Render(run.ID[:min(8, len(run.ID))]),
		detail,
	)
}
