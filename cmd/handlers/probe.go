package handlers

import (
	"briefcast/internal/config"
	"briefcast/internal/tts"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// NewProbeCmd creates the probe command
func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [endpoint]",
		Short: "List the API endpoints of a hosted speech demo",
		Long: `Ask a hosted Gradio demo which named endpoints it exposes, to find the
value for tts.space.api_name.

The endpoint may be hf://owner/name, owner/name, a huggingface.co/spaces URL
or a *.hf.space URL. Without an argument tts.endpoint is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			endpoint := cfg.TTS.Endpoint
			if len(args) == 1 {
				endpoint = args[0]
			}
			if endpoint == "" {
				return fmt.Errorf("no endpoint given and tts.endpoint is empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			names, err := tts.Probe(ctx, &http.Client{}, endpoint)
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render(fmt.Sprintf("%d named endpoints", len(names))))
			for _, name := range names {
				marker := "  "
				if name == "/"+cfg.TTS.Space.APIName || name == cfg.TTS.Space.APIName {
					marker = successStyle.Render("* ")
				}
				fmt.Println(marker + valueStyle.Render(name))
			}
			return nil
		},
	}
	return cmd
}
