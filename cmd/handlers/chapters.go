package handlers

import (
	"briefcast/internal/audio"
	"briefcast/internal/config"
	"briefcast/internal/render"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewChaptersCmd creates the chapters command
func NewChaptersCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "chapters [chapters.json]",
		Short: "Show the chapters of the published briefing",
		Long: `Print the chapter list of a briefing with timestamps and sources.

Without an argument the chapters file in audio.public_dir is read. With
--notes the list is also written as an HTML show notes page.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			path := filepath.Join(cfg.Audio.PublicDir, cfg.Audio.ChaptersFilename)
			if len(args) == 1 {
				path = args[0]
			}

			chapters, err := audio.ReadChapters(path)
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render(fmt.Sprintf("%d chapters", len(chapters))))
			for _, ch := range chapters {
				line := labelStyle.Render(audio.FormatTimestamp(ch.Start)) + valueStyle.Render(ch.Title)
				if len(ch.Sources) > 0 {
					line += " " + labelStyle.UnsetWidth().Render(strings.Join(ch.Sources, ", "))
				}
				fmt.Println(line)
			}

			if notes != "" {
				written, err := render.WriteShowNotes(cfg.Digest.Title, chapters, notes)
				if err != nil {
					return err
				}
				fmt.Println(successStyle.Render("Show notes written to " + written))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Write HTML show notes to this file")
	return cmd
}
