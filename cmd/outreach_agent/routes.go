package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/jonathan/outreach-agent/internal/server/payment"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Inspect the payment route table",
}

var routesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a payment route table file",
	Long: `Validate a payment route table against its JSON schema and check that every price
parses, every network is known and no pattern is listed twice.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoutesValidate,
}

func init() {
	routesCmd.AddCommand(routesValidateCmd)
	rootCmd.AddCommand(routesCmd)
}

func runRoutesValidate(cmd *cobra.Command, args []string) error {
	routes, err := payment.LoadRoutes(args[0])
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PATTERN\tPRICE\tNETWORK")
	for _, r := range routes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Pattern, r.Price, r.Network)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Validation passed: %d routes\n", len(routes))
	return nil
}
