package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"forge-endpointify/internal/models"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		forceLive    bool
		timeoutMs    int
		noBackground bool
		compact      bool
	)
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract components from one URL and print the result as JSON",
		Example: `  endpointify extract https://news.ycombinator.com
  endpointify extract https://shop.example --force-live --timeout-ms 5000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.Options{ForceLive: forceLive, TimeoutMs: timeoutMs}
			if noBackground {
				off := false
				opts.BackgroundLive = &off
			}
			res, err := a.svc.Pipeline.Extract(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&forceLive, "force-live", false, "Skip the demo cache and capture the page live")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "Live capture timeout in milliseconds (default from config)")
	cmd.Flags().BoolVar(&noBackground, "no-background", false, "Do not schedule a background refresh on cache hits")
	cmd.Flags().BoolVar(&compact, "compact", false, "Print single-line JSON")
	return cmd
}
