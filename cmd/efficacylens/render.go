package main

import (
	"fmt"
	"os"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/spf13/cobra"
)

type renderFlags struct {
	input      string
	output     string
	jsonOutput string
	xlsx       string
	pdf        string
}

func newRenderCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Rebuild reports from a saved response envelope",
		Long: `Render regenerates the markdown report from a saved response envelope JSON
without calling the analysis service, and optionally exports XLSX or PDF.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.input == "" {
				return fmt.Errorf("missing required --input")
			}
			in, err := os.ReadFile(f.input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			env, err := efficacylens.DecodeEnvelope(in)
			if err != nil {
				return err
			}
			rebuilt, err := efficacylens.RebuildResponseFromEnvelope(env)
			if err != nil {
				return fmt.Errorf("rebuild report: %w", err)
			}

			if err := writeMarkdown(cmd.OutOrStdout(), f.output, rebuilt.ReportMarkdown); err != nil {
				return fmt.Errorf("write markdown: %w", err)
			}
			if f.jsonOutput != "" {
				out, err := os.Create(f.jsonOutput)
				if err != nil {
					return err
				}
				defer out.Close()
				if err := writeEnvelopeJSON(out, rebuilt); err != nil {
					return fmt.Errorf("write json output: %w", err)
				}
			}
			if f.xlsx != "" {
				if err := writeWorkbook(f.xlsx, rebuilt); err != nil {
					return err
				}
			}
			if f.pdf != "" {
				b, err := cli.pdfRenderer().Render(cmd.Context(), rebuilt)
				if err != nil {
					return fmt.Errorf("render pdf: %w", err)
				}
				return writeFile(f.pdf, b)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "saved response envelope JSON")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "path for the rebuilt markdown (defaults to stdout)")
	cmd.Flags().StringVar(&f.jsonOutput, "json-output", "", "optional path for the rebuilt envelope JSON")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "optional path for an XLSX workbook")
	cmd.Flags().StringVar(&f.pdf, "pdf", "", "optional path for a PDF report (requires Chromium)")
	return cmd
}
