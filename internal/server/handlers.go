package server

import (
	"briefcast/internal/audio"
	"briefcast/internal/core"
	"briefcast/internal/history"
	"briefcast/internal/render"
	"briefcast/internal/script"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse describes the published briefing
type StatusResponse struct {
	Uptime      string     `json:"uptime"`
	Available   bool       `json:"available"`
	AudioURL    string     `json:"audio_url,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	Chapters    int        `json:"chapters"`
}

// TranscriptResponse is returned by /api/transcript
type TranscriptResponse struct {
	Lines []string `json:"lines"`
}

var serverStartTime = time.Now()

func (s *Server) publicPath(name string) string {
	return filepath.Join(s.opts.PublicDir, name)
}

func (s *Server) audioURL() string {
	return "/audio/" + s.opts.AudioFilename
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"public_dir": "ok", "history": "disabled"}
	status := http.StatusOK

	if info, err := os.Stat(s.opts.PublicDir); err != nil || !info.IsDir() {
		checks["public_dir"] = "missing"
		status = http.StatusServiceUnavailable
	}
	if s.history != nil {
		checks["history"] = "ok"
		if _, err := s.history.Recent(r.Context(), 1); err != nil {
			checks["history"] = "error"
			status = http.StatusServiceUnavailable
		}
	}

	resp := HealthResponse{Status: "ok", Checks: checks}
	if status != http.StatusOK {
		resp.Status = "unhealthy"
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Uptime: time.Since(serverStartTime).Round(time.Second).String()}

	if info, err := os.Stat(s.publicPath(s.opts.AudioFilename)); err == nil {
		modified := info.ModTime()
		resp.Available = true
		resp.AudioURL = s.audioURL()
		resp.GeneratedAt = &modified
	}
	if chapters, err := audio.ReadChapters(s.publicPath(s.opts.ChaptersFilename)); err == nil {
		resp.Chapters = len(chapters)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	chapters, ok := s.readChapters(w)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, chapters)
}

func (s *Server) readChapters(w http.ResponseWriter) ([]core.Chapter, bool) {
	chapters, err := audio.ReadChapters(s.publicPath(s.opts.ChaptersFilename))
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.respondError(w, http.StatusNotFound, "no briefing has been published")
		return nil, false
	case err != nil:
		s.log.Error("Failed to read chapters", "error", err)
		s.respondError(w, http.StatusInternalServerError, "chapters are unreadable")
		return nil, false
	}
	return chapters, true
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	lines, err := script.ReadTranscript(s.publicPath(s.opts.TranscriptFilename))
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.respondError(w, http.StatusNotFound, "no briefing has been published")
		return
	case err != nil:
		s.log.Error("Failed to read transcript", "error", err)
		s.respondError(w, http.StatusInternalServerError, "transcript is unreadable")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	s.respondJSON(w, http.StatusOK, TranscriptResponse{Lines: lines})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to list run history", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list run history")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.Get(r.Context(), id)
	if err != nil {
		s.log.Error("Failed to load run", "run_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleShowNotes(w http.ResponseWriter, r *http.Request) {
	chapters, ok := s.readChapters(w)
	if !ok {
		return
	}

	body := fmt.Sprintf("# %s\n\n%s", s.opts.ShowTitle, render.ShowNotesMarkdown(chapters))
	page, err := render.Document(s.opts.ShowTitle, s.audioURL(), body)
	if err != nil {
		s.log.Error("Failed to render show notes", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to render show notes")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	if s.opts.DigestPath != "" {
		if _, err := os.Stat(s.opts.DigestPath); err == nil {
			http.ServeFile(w, r, s.opts.DigestPath)
			return
		}
	}
	http.Redirect(w, r, "/shownotes", http.StatusFound)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{
		"error": map[string]any{
			"status":  status,
			"message": message,
		},
	})
}
