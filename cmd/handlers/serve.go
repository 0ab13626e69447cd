package handlers

import (
	"briefcast/internal/config"
	"briefcast/internal/history"
	"briefcast/internal/logger"
	"briefcast/internal/server"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the published briefing over HTTP",
		Long: `Start an HTTP server for the published briefing.

The server provides:
  • /audio/*          the files in audio.public_dir (range requests supported)
  • /api/chapters     chapters of the published briefing
  • /api/transcript   transcript lines
  • /api/history      recent runs
  • /shownotes        HTML show notes
  • /                 the rendered digest page

Examples:
  briefcast serve
  briefcast serve --addr 127.0.0.1:3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: :8080)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	var reader server.HistoryReader
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			log.Warn("Run history unavailable", "error", err)
		} else {
			defer func() { _ = store.Close() }()
			reader = store
		}
	}

	srv := server.New(server.Options{
		Addr:               cfg.Server.Addr,
		PublicDir:          cfg.Audio.PublicDir,
		AudioFilename:      cfg.Audio.Filename,
		ChaptersFilename:   cfg.Audio.ChaptersFilename,
		TranscriptFilename: cfg.Audio.TranscriptFilename,
		DigestPath:         cfg.Digest.Output,
		ShowTitle:          cfg.Digest.Title,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
	}, reader)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on %s", cfg.Server.Addr))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
