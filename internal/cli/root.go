// Package cli implements the approverctl command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "approverctl",
	Short: "Operate and simulate the approver selection service",
	Long: "Runs approver selection offline against YAML scenarios, or asks a\n" +
		"running approver selection service for a decision over gRPC.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
