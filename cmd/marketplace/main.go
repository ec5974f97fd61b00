// Package main provides the entry point for the freelance marketplace API
// server and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var policyPath string

var rootCmd = &cobra.Command{
	Use:   "marketplace",
	Short: "Freelance marketplace lifecycle server",
	Long: "Marketplace runs the job, proposal, escrow and notification lifecycle " +
		"behind a REST API, and ships the migration, reconciliation and feed import tools that operate on the same store.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "config", "", "Path to a YAML policy file (rate limits, notification templates)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
