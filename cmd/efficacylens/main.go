// Command efficacylens compares two clinical trial publications for the same
// disease and reports their efficacy and safety side by side.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joelkehle/efficacylens/internal/config"
	"github.com/joelkehle/efficacylens/internal/logging"
	"github.com/joelkehle/efficacylens/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set at build time via ldflags.
var version = "dev"

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	shutdown telemetry.ShutdownFunc
}

var cli = &app{}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "efficacylens",
		Short: "Compare efficacy and safety across two clinical trial publications",
		Long: `efficacylens extracts text from two clinical trial publications, checks that
both study the same disease, and only then asks the analysis service for a
side-by-side comparison of study design, efficacy and safety with an
executive summary. Cross-disease pairs are rejected with guidance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.load(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "config file (default: ./efficacylens.yaml or ~/.config/efficacylens/efficacylens.yaml)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(
		newCompareCmd(),
		newSamplesCmd(),
		newRenderCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	shutdown, err := telemetry.Setup(cmd.Context(), cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.shutdown = cfg, logger, shutdown
	return nil
}

func (a *app) close() {
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil && a.logger != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
		a.shutdown = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// execute runs root and then flushes telemetry and logs. Cobra skips
// post-run hooks when RunE fails, so closing happens here for every outcome.
func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	cli.close()
	return err
}

func main() {
	err := execute(context.Background(), newRootCmd())
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(1)
}
