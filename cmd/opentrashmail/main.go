// Command opentrashmail receives mail for any address, stores it per
// mailbox as JSON and serves the mailboxes over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opentrashmail",
		Short:         "Disposable mail receiver",
		Long:          "opentrashmail accepts mail for any address, stores it per mailbox and notifies webhooks.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := serveCmd()
	root.AddCommand(serve)
	root.AddCommand(versionCmd())

	// Running without a subcommand serves.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opentrashmail %s\n", version)
		},
	}
}
