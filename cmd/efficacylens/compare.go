package main

import (
	"context"
	"fmt"
	"io"

	"github.com/joelkehle/efficacylens/internal/apiclient"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit code for a pair rejected by the compatibility gate.
const exitRejected = 2

type compareFlags struct {
	output   string
	jsonOut  bool
	xlsx     string
	pdf      string
	quiet    bool
	noRecord bool
	server   string
}

func newCompareCmd() *cobra.Command {
	var f compareFlags
	cmd := &cobra.Command{
		Use:   "compare <publication1> <publication2>",
		Short: "Compare two clinical trial publications",
		Long: `Compare extracts text from both publications, confirms they study the same
disease and, if so, produces a side-by-side comparison with an executive
summary. Incompatible pairs exit with status 2 and a rejection report.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p progressComparer
			if f.server != "" {
				// The server keeps its own history.
				p, f.noRecord = apiclient.NewClient(f.server), true
			} else {
				local, err := cli.pipeline()
				if err != nil {
					return err
				}
				p = local
			}
			req := efficacylens.Request{Publication1Path: args[0], Publication2Path: args[1]}
			return cli.runCompare(cmd.Context(), p, req, f, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the markdown report to this path")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the response envelope as JSON instead of tables")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "write an XLSX workbook to this path")
	cmd.Flags().StringVar(&f.pdf, "pdf", "", "write a PDF report to this path (requires Chromium)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not print progress")
	cmd.Flags().BoolVar(&f.noRecord, "no-history", false, "do not record the run in history")
	cmd.Flags().StringVar(&f.server, "server", "", "run on a remote efficacylens API at this base URL")
	return cmd
}

type progressComparer interface {
	CompareWithProgress(ctx context.Context, req efficacylens.Request, progress efficacylens.ProgressFn) (efficacylens.Outcome, error)
}

func (a *app) runCompare(ctx context.Context, p progressComparer, req efficacylens.Request, f compareFlags, stdout, stderr io.Writer) error {
	var progress efficacylens.ProgressFn
	if !f.quiet {
		progress = func(state efficacylens.State, message string) {
			fmt.Fprintln(stderr, dimStyle.Render(fmt.Sprintf("[%s] %s", state, message)))
		}
	}

	out, runErr := p.CompareWithProgress(ctx, req, progress)
	env := efficacylens.BuildResponse(out)
	if !f.noRecord {
		a.record(ctx, env)
	}

	if f.jsonOut {
		if err := writeEnvelopeJSON(stdout, env); err != nil {
			return err
		}
	} else {
		printEnvelope(stdout, env)
	}
	if f.output != "" {
		if err := writeMarkdown(stdout, f.output, env.ReportMarkdown); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if f.xlsx != "" {
		if err := writeWorkbook(f.xlsx, env); err != nil {
			return err
		}
	}
	if f.pdf != "" {
		b, err := a.pdfRenderer().Render(ctx, env)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		if err := writeFile(f.pdf, b); err != nil {
			return err
		}
	}
	if r := out.Rejection; out.Status == efficacylens.StatusRejected && r != nil {
		return &exitError{code: exitRejected, err: fmt.Errorf("publications are not comparable: %s", r.Reason)}
	}
	return nil
}

// record saves the run to history. Failures are logged, never fatal.
func (a *app) record(ctx context.Context, env efficacylens.ResponseEnvelope) {
	s, err := a.runStore()
	if err != nil {
		a.logger.Warn("run history unavailable", zap.Error(err))
		return
	}
	if s == nil {
		return
	}
	defer s.Close()
	if err := s.Save(ctx, env); err != nil {
		a.logger.Warn("record run", zap.String("run_id", env.RunID), zap.Error(err))
	}
}
