// Package main is the entry point for the concierge service, the AI
// assistant backend for restaurant staff.
//
// Start the server:
//
//	concierge serve --config concierge.yaml
//
// With no config file, settings come from defaults and the environment
// (ANTHROPIC_API_KEY, CONCIERGE_BACKEND_URL).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "concierge",
		Short:         "AI assistant service for restaurant operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "concierge %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
