package main

import (
	"fmt"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/spf13/cobra"
)

func newSamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List publication pairs known to pass the compatibility check",
		Run: func(cmd *cobra.Command, args []string) {
			tbl := newTable("Disease", "Publication 1", "Publication 2")
			for _, pair := range efficacylens.SamplePairs {
				tbl.Row(pair.Disease, pair.Files[0], pair.Files[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
		},
	}
}
