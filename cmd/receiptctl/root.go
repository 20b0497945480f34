package main

import (
	"github.com/danmuck/receiptctl/internal/httpapi"
	"github.com/danmuck/receiptctl/internal/logging"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "receiptctl",
		Short: "receiptctl captures ESC/POS print jobs and decodes them to text",
		Long: `receiptctl sits between a point-of-sale system and a receipt printer.
It decodes every job it receives into plain text, forwards the raw job to the
printer, and publishes a report for each receipt.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       httpapi.Version,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.ConfigureRuntime()
		},
	}
	root.AddCommand(newServeCmd(), newDecodeCmd(), newCommandsCmd(), newConfigCmd())
	return root
}
