// Package main provides the entry point for the outreach agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "outreach_agent",
	Short: "Autonomous outreach agent",
	Long: `Outreach agent tracks prospects through the sales pipeline, runs the agent tick
that sends outreach, generates sites and suggests campaigns, and serves the operator API
with a live activity stream and payment-gated campaign activation.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
