package handlers

import (
	"briefcast/internal/audio"
	"briefcast/internal/config"
	"briefcast/internal/core"
	"briefcast/internal/fetch"
	"briefcast/internal/logger"
	"briefcast/internal/render"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// NewDigestCmd creates the digest command
func NewDigestCmd() *cobra.Command {
	var (
		output    string
		withAudio bool
		noPreview bool
	)

	cmd := &cobra.Command{
		Use:   "digest [report]",
		Short: "Render the HTML digest page",
		Long: `Render the headline report as an HTML page grouped by keyword.

Preview images come from the link-preview cache. When a briefing has been
published, the page links its audio, transcript and chapters.

Examples:
  briefcast digest output/report.json
  briefcast digest output/report.json --with-audio -o public/index.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if output != "" {
				cfg.Digest.Output = output
			}
			if noPreview {
				cfg.Preview.Enabled = false
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runDigest(cmd.Context(), cfg, path, withAudio)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output HTML file (default from config: output/index.html)")
	cmd.Flags().BoolVar(&withAudio, "with-audio", false, "Generate the audio briefing before rendering")
	cmd.Flags().BoolVar(&noPreview, "no-preview", false, "Skip preview image lookups")

	return cmd
}

func runDigest(ctx context.Context, cfg *config.Config, path string, withAudio bool) error {
	items, err := loadItems(ctx, cfg, path)
	if err != nil {
		return err
	}

	if withAudio {
		p, cleanup, err := buildPipeline(ctx, cfg)
		if err != nil {
			return err
		}
		// Rendering goes ahead whatever happens to the briefing.
		if result := p.MaybeGenerate(ctx, items); result != nil {
			printResult(result)
		}
		cleanup()
	}

	var images render.ImageSource
	var cache *fetch.PreviewCache
	if cfg.Preview.Enabled {
		cache = fetch.LoadPreviewCache(&http.Client{}, fetch.PreviewOptions{
			Path:      cfg.Preview.CacheFile,
			TTL:       config.ParseDuration(cfg.Preview.TTL, 0),
			Limit:     cfg.Preview.Limit,
			Timeout:   config.ParseDuration(cfg.Preview.Timeout, 0),
			MaxBytes:  cfg.Preview.MaxBytes,
			UserAgent: cfg.Fetch.UserAgent,
		})
		images = cache
	}

	page := render.Page{
		Title:       cfg.Digest.Title,
		GeneratedAt: time.Now(),
		Groups:      render.BuildGroups(ctx, items, images),
		Radio:       publishedRadio(cfg),
	}

	if cache != nil {
		if err := cache.Save(); err != nil {
			logger.Warn("Failed to save preview cache", "error", err.Error())
		}
	}

	written, err := render.WriteDigest(page, cfg.Digest.Output)
	if err != nil {
		return err
	}

	headlines := 0
	for _, g := range page.Groups {
		headlines += len(g.Headlines)
	}
	fmt.Println(boxStyle.Render(titleStyle.Render("Digest") + "\n" +
		field("Page", written) + "\n" +
		field("Keywords", fmt.Sprint(len(page.Groups))) + "\n" +
		field("Headlines", fmt.Sprint(headlines))))
	return nil
}

// publishedRadio describes the briefing in the public directory, or nil when
// there is none
func publishedRadio(cfg *config.Config) *render.Radio {
	audioPath := filepath.Join(cfg.Audio.PublicDir, cfg.Audio.Filename)
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil
	}

	chaptersPath := filepath.Join(cfg.Audio.PublicDir, cfg.Audio.ChaptersFilename)
	transcriptPath := filepath.Join(cfg.Audio.PublicDir, cfg.Audio.TranscriptFilename)
	page := cfg.Digest.Output

	radio := &render.Radio{
		AudioURL:    relativeURL(page, audioPath),
		GeneratedAt: info.ModTime(),
	}
	if chapters, err := audio.ReadChapters(chaptersPath); err == nil {
		radio.ChaptersURL = relativeURL(page, chaptersPath)
		radio.Chapters = chapters
	} else {
		radio.Chapters = []core.Chapter{}
	}
	if _, err := os.Stat(transcriptPath); err == nil {
		radio.TranscriptURL = relativeURL(page, transcriptPath)
	}
	return radio
}
