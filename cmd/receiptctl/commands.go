package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/danmuck/receiptctl/internal/escpos"
	"github.com/spf13/cobra"
)

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the recognized ESC/POS commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNAME\tARGS")
			for _, c := range escpos.DefaultTree().Commands() {
				fmt.Fprintf(w, "%s\t%s\t%d\n", escpos.FormatPath(c.Path), c.Handler.Name, c.Handler.Arity)
			}
			return w.Flush()
		},
	}
}
