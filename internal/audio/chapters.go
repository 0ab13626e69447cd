package audio

import (
	"briefcast/internal/core"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// BuildChapters places a chapter at the running start time of every segment
// that carries one. durations must be aligned with segments; missing entries
// count as zero.
func BuildChapters(segments []core.Segment, durations []float64) []core.Chapter {
	chapters := []core.Chapter{}
	cursor := 0.0
	for i, seg := range segments {
		if seg.Chapter != nil {
			sources := seg.Chapter.Sources
			if sources == nil {
				sources = []string{}
			}
			chapters = append(chapters, core.Chapter{
				Title:   seg.Chapter.Title,
				Start:   math.Round(cursor*100) / 100,
				Sources: sources,
			})
		}
		if i < len(durations) && durations[i] > 0 {
			cursor += durations[i]
		}
	}
	return chapters
}

// WriteChapters stores chapters as an indented JSON array
func WriteChapters(chapters []core.Chapter, path string) error {
	if chapters == nil {
		chapters = []core.Chapter{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(chapters); err != nil {
		return fmt.Errorf("failed to encode chapters: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create chapters directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write chapters %s: %w", path, err)
	}
	return nil
}

// ReadChapters loads a chapters file written by WriteChapters
func ReadChapters(path string) ([]core.Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapters %s: %w", path, err)
	}
	var chapters []core.Chapter
	if err := json.Unmarshal(data, &chapters); err != nil {
		return nil, fmt.Errorf("failed to parse chapters %s: %w", path, err)
	}
	return chapters, nil
}

// FormatTimestamp renders seconds as m:ss, or h:mm:ss past the hour
func FormatTimestamp(seconds float64) string {
	total := int(math.Floor(seconds))
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
