package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:   "financehub",
		Short: "Finance hub: statement ingestion, reconciliation and P&L",
		Long: `financehub ingests bank and payment-provider exports, reconciles them
against AP and AR invoices and serves the P&L report.

Without a subcommand it starts the HTTP server.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, newMigrateCmd(), newEnqueueCmd(), newJobsCmd())
	return root
}
