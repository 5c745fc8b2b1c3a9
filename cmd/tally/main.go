// Command tally is the billing-core CLI: scoped configuration, service
// locations, and background enrichment jobs over a sqlite database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tallybill/tally/cmd/tally/commands"
	"github.com/tallybill/tally/logger"
	"github.com/tallybill/tally/version"
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Billing configuration and location core",
	Long: `tally — configuration resolution and location deduplication core.

Commands:
  am       Manage process configuration
  conf     Manage scoped billing configuration (conf table)
  db       Database operations (migrate, stats)
  pulse    Background job daemon (worker pool)
  enrich   Enqueue background enrichment jobs`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if verbose, _ := cmd.Flags().GetCount("verbose"); verbose > 0 {
			logger.SetVerbose()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase verbosity (-v, -vv)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.ConfCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.EnrichCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
