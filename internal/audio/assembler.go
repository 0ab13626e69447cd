// Package audio joins voiced segments into one file and derives its chapter
// markers.
package audio

import (
	"briefcast/internal/logger"
	"briefcast/internal/tts"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ManifestName is the concat list written next to the output file
const ManifestName = "concat_list.txt"

// ErrFFmpegMissing is returned when no ffmpeg executable can be found
var ErrFFmpegMissing = errors.New("ffmpeg not found")

// Options configures the assembler
type Options struct {
	FFmpegPath string
	Codec      string
	Quality    string
}

// DefaultOptions returns MP3 re-encoding at VBR quality 4
func DefaultOptions() Options {
	return Options{Codec: "libmp3lame", Quality: "4"}
}

// Assembler concatenates segment files with ffmpeg
type Assembler struct {
	opts     Options
	runner   tts.CommandRunner
	lookPath func(string) (string, error)
}

// NewAssembler creates an assembler. A nil runner executes ffmpeg directly.
func NewAssembler(opts Options, runner tts.CommandRunner) *Assembler {
	defaults := DefaultOptions()
	if opts.Codec == "" {
		opts.Codec = defaults.Codec
	}
	if opts.Quality == "" {
		opts.Quality = defaults.Quality
	}
	if runner == nil {
		runner = tts.ExecRunner{}
	}
	return &Assembler{opts: opts, runner: runner, lookPath: exec.LookPath}
}

// Assemble joins paths, in order, into output. Segment files are left in
// place whether or not the join succeeds.
func (a *Assembler) Assemble(ctx context.Context, paths []string, output string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no audio segments to assemble")
	}

	ffmpeg, err := a.ffmpeg()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	manifest := filepath.Join(filepath.Dir(output), ManifestName)
	if err := writeManifest(paths, manifest); err != nil {
		return err
	}

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", manifest}
	args = append(args, a.codecArgs(output)...)
	args = append(args, output)

	logger.Info("Assembling audio", "segments", len(paths), "output", output)
	_, stderr, err := a.runner.Run(ctx, "", ffmpeg, args...)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if len(detail) > 500 {
			detail = detail[len(detail)-500:]
		}
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, detail)
	}
	return nil
}

func (a *Assembler) ffmpeg() (string, error) {
	name := a.opts.FFmpegPath
	if name == "" {
		name = "ffmpeg"
	}
	path, err := a.lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFFmpegMissing, name)
	}
	return path, nil
}

// codecArgs re-encodes lossy targets and stream-copies everything else
func (a *Assembler) codecArgs(output string) []string {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mp3":
		return []string{"-c:a", a.opts.Codec, "-q:a", a.opts.Quality}
	case ".ogg":
		return []string{"-c:a", "libvorbis", "-q:a", a.opts.Quality}
	case ".m4a", ".aac":
		return []string{"-c:a", "aac", "-b:a", "128k"}
	case ".opus":
		return []string{"-c:a", "libopus", "-b:a", "64k"}
	default:
		return []string{"-c", "copy"}
	}
}

// writeManifest writes one "file '<abs path>'" line per segment
func writeManifest(paths []string, manifest string) error {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(filepath.ToSlash(abs), "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(manifest, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat manifest: %w", err)
	}
	return nil
}
