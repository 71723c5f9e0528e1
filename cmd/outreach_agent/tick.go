package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/outreach-agent/internal/config"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/spf13/cobra"
)

var (
	tickConfigPath string
	tickStore      string
	tickVerbose    bool
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one agent tick and print its summary",
	Long: `Run a single agent tick as the cron actor: send outreach to new prospects, generate
sites for stale contacted prospects and suggest campaigns. Prints the tick summary as JSON.`,
	RunE: runTickCmd,
}

func init() {
	tickCmd.Flags().StringVar(&tickConfigPath, "config", "", "Path to config.json file")
	tickCmd.Flags().StringVar(&tickStore, "store", storePostgres, "Storage backend: postgres or memory")
	tickCmd.Flags().BoolVarP(&tickVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(tickCmd)
}

func runTickCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(tickConfigPath)
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := buildApp(ctx, cfg, tickStore, newLogger(cfg, tickVerbose))
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.engine.RunTick(ctx, types.ActorCron)
	if err != nil {
		return fmt.Errorf("tick failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
