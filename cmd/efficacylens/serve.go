package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joelkehle/efficacylens/internal/httpapi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the comparison HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cli.cfg.Server.Addr
			}
			p, err := cli.pipeline()
			if err != nil {
				return err
			}
			opts := httpapi.Options{
				PDF:            cli.pdfRenderer(),
				Logger:         cli.logger.Named("http"),
				MaxUploadBytes: cli.cfg.Server.MaxUploadBytes,
				RequestTimeout: cli.cfg.Server.RequestTimeout,
			}
			runs, err := cli.runStore()
			if err != nil {
				return err
			}
			if runs != nil {
				defer runs.Close()
				opts.Runs = runs
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewServer(p, opts),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				cli.logger.Info("serving efficacylens api", zap.String("addr", addr), zap.Bool("history", runs != nil))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
			defer stop()
			cli.logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}
