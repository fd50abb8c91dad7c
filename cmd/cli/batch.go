package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"forge-endpointify/internal/ioformats"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		input       string
		output      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Extract every URL listed in a CSV or NDJSON file",
		Long: `batch reads requests from a CSV file (header with a "url" column and optional
"force_live", "timeout_ms" columns) or an NDJSON file (a bare URL or
{"url": ..., "options": {...}} per line) and writes one NDJSON result per
request, in input order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input == "" {
				return fmt.Errorf("missing --input")
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			reqs, err := ioformats.ReadRequests(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			items := a.svc.Batch(cmd.Context(), reqs, concurrency)

			var w io.Writer = a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return ioformats.WriteNDJSON(w, items)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Input file (.csv with a 'url' column, or .ndjson)")
	cmd.Flags().StringVar(&output, "output", "", "Output NDJSON file (default stdout)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "Extractions in flight")
	return cmd
}
