package handlers

import (
	"briefcast/internal/config"
	"briefcast/internal/logger"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "briefcast",
		Short: "Turn trending headlines into a digest page and a chaptered audio briefing",
		Long: `briefcast reads a ranked headline report (or RSS feeds), groups headlines
that describe the same story, summarizes each story with Gemini and reads the
result aloud as a radio-style briefing with chapter markers.

Examples:
  # Generate the audio briefing from a crawler report
  briefcast generate output/report.json

  # Render the HTML digest page, generating audio first
  briefcast digest output/report.json --with-audio

  # Serve the published briefing
  briefcast serve --addr :8080`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			level := cfg.Logging.Level
			if cfg.App.Debug {
				level = "debug"
			}
			if logLevel != "" {
				level = logLevel
			}
			logger.SetLevel(level)
			logger.SetHeartbeatInterval(time.Duration(cfg.Logging.HeartbeatSeconds) * time.Second)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .briefcast.yaml in . or $HOME)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewDigestCmd())
	rootCmd.AddCommand(NewChaptersCmd())
	rootCmd.AddCommand(NewHistoryCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewProbeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
