package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/joelkehle/efficacylens/internal/apiclient"
	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		status  string
		limit   int
		jsonOut bool
		server  string
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded comparison runs or show one run's report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if server != "" {
				return remoteHistory(cmd.Context(), apiclient.NewClient(server), args, status, limit, jsonOut, w)
			}

			s, err := cli.runStore()
			if err != nil {
				return err
			}
			if s == nil {
				return errors.New("run history is disabled (store.path is empty)")
			}
			defer s.Close()

			if len(args) == 1 {
				_, env, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return showRun(w, env, jsonOut)
			}
			runs, err := s.List(cmd.Context(), storeFilter(status, limit))
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSONValue(w, runs)
			}
			printRuns(w, runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status: completed, rejected or failed")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	cmd.Flags().StringVar(&server, "server", "", "read history from a remote efficacylens API")
	return cmd
}

func remoteHistory(ctx context.Context, c *apiclient.Client, args []string, status string, limit int, jsonOut bool, w io.Writer) error {
	if len(args) == 1 {
		if jsonOut {
			env, err := c.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return writeEnvelopeJSON(w, env)
		}
		md, err := c.Report(ctx, args[0], "md")
		if err != nil {
			return err
		}
		_, err = w.Write(md)
		return err
	}
	runs, err := c.List(ctx, storeFilter(status, limit))
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSONValue(w, runs)
	}
	printRuns(w, runs)
	return nil
}

func showRun(w io.Writer, env efficacylens.ResponseEnvelope, jsonOut bool) error {
	if jsonOut {
		return writeEnvelopeJSON(w, env)
	}
	if env.ReportMarkdown == "" {
		rebuilt, err := efficacylens.RebuildResponseFromEnvelope(env)
		if err != nil {
			return err
		}
		env = rebuilt
	}
	_, err := fmt.Fprint(w, env.ReportMarkdown)
	return err
}
