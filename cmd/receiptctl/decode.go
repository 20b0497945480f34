package main

import (
	"errors"
	"fmt"

	"github.com/danmuck/receiptctl/internal/escpos"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode captured ESC/POS files to text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var errs []error
			for _, path := range args {
				res, err := escpos.DecodeFile(path)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					continue
				}
				if len(args) > 1 {
					fmt.Fprintf(out, "==> %s <==\n", path)
				}
				fmt.Fprintln(out, res.Text)
				if !quiet {
					fmt.Fprintf(out, "errors: %d handler_failures: %d\n", res.Errors, res.HandlerFailures)
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the decoded text")
	return cmd
}
