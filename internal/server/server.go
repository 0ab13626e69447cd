// Package server serves the published briefing and its run history over HTTP.
package server

import (
	"briefcast/internal/history"
	"briefcast/internal/logger"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HistoryReader is the read side of the run history store
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (*history.Run, error)
}

// Options configures the server
type Options struct {
	Addr               string
	PublicDir          string // Directory holding the published audio, chapters and transcript
	AudioFilename      string
	ChaptersFilename   string
	TranscriptFilename string
	DigestPath         string // Rendered digest page served at /
	ShowTitle          string
	AllowedOrigins     []string
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	history    HistoryReader
	opts       Options
	log        *slog.Logger
}

// New creates a server. history may be nil, in which case the history API
// answers 503.
func New(opts Options, history HistoryReader) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router:  chi.NewRouter(),
		history: history,
		opts:    opts,
		log:     logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Range", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(noCache)
		r.Get("/status", s.handleStatus)
		r.Get("/chapters", s.handleChapters)
		r.Get("/transcript", s.handleTranscript)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Get("/{id}", s.handleGetHistory)
		})
	})

	s.router.Get("/shownotes", s.handleShowNotes)
	s.router.Get("/", s.handleDigest)

	// Range requests come for free so players can seek.
	files := http.StripPrefix("/audio/", http.FileServer(http.Dir(s.opts.PublicDir)))
	s.router.With(audioCache).Get("/audio/*", files.ServeHTTP)
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", "addr", s.httpServer.Addr, "public_dir", s.opts.PublicDir)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
