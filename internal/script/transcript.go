package script

import (
	"briefcast/internal/core"
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteTranscript writes one trimmed line per non-empty segment. Nothing is
// written when every segment is empty. It reports whether the file was
// written.
func WriteTranscript(segments []core.Segment, path string) (bool, error) {
	var lines []string
	for _, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return false, fmt.Errorf("failed to write transcript %s: %w", path, err)
	}
	return true, nil
}

// ReadTranscript returns the non-empty lines of a transcript file.
func ReadTranscript(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading transcript %s: %w", path, err)
	}
	return lines, nil
}
