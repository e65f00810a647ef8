// Package cli holds the devlens command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "devlens",
	Short: "Development-time observability engine for web applications",
	Long: "Captures HTTP traffic, deduplicates runtime errors, and collects request\n" +
		"metrics inside a host application, streaming everything to connected\n" +
		"inspector clients over a framed session protocol.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
