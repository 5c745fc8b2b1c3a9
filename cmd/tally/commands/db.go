package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tallybill/tally/am"
	"github.com/tallybill/tally/pulse/async"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage tally database",
	Long: `db — Manage tally database operations

Examples:
  tally db migrate                # Apply pending schema migrations
  tally db stats                  # Show database statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long:  "Open the configured database and apply any embedded schema migrations that have not run yet",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display row counts for configuration, locations, and background jobs",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening.
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	var version int
	if err := database.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	fmt.Printf("✓ Database migrated (schema version %d)\n", version)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	var confEntries, confAgentScoped int
	err = database.QueryRow(`
		SELECT COUNT(*), COUNT(CASE WHEN agentnum != 0 THEN 1 END)
		FROM conf
	`).Scan(&confEntries, &confAgentScoped)
	if err != nil {
		return fmt.Errorf("failed to query conf stats: %w", err)
	}

	var locations, disabled, unclean, missingCoords int
	err = database.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN disabled != 0 THEN 1 END),
			COUNT(CASE WHEN addr_clean = 0 AND disabled = 0 THEN 1 END),
			COUNT(CASE WHEN latitude IS NULL AND disabled = 0 THEN 1 END)
		FROM locations
	`).Scan(&locations, &disabled, &unclean, &missingCoords)
	if err != nil {
		return fmt.Errorf("failed to query location stats: %w", err)
	}

	var auditRows int
	err = database.QueryRow(`SELECT COUNT(*) FROM location_audit`).Scan(&auditRows)
	if err != nil {
		return fmt.Errorf("failed to query audit stats: %w", err)
	}

	queue := async.NewQueue(database)
	jobStats, err := queue.GetStats()
	if err != nil {
		return fmt.Errorf("failed to query job stats: %w", err)
	}

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:       %s\n", cfg.GetDatabasePath())
	fmt.Println()
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Entries:           %d\n", confEntries)
	fmt.Printf("  Agent-scoped:      %d\n", confAgentScoped)
	fmt.Println()
	fmt.Printf("Locations:\n")
	fmt.Printf("  Total:             %d\n", locations)
	fmt.Printf("  Disabled:          %d\n", disabled)
	fmt.Printf("  Unstandardized:    %d\n", unclean)
	fmt.Printf("  Missing coords:    %d\n", missingCoords)
	fmt.Printf("  Audit records:     %d\n", auditRows)
	fmt.Println()
	fmt.Printf("Background Jobs:\n")
	fmt.Printf("  Queued:            %d\n", jobStats.Queued)
	fmt.Printf("  Running:           %d\n", jobStats.Running)
	fmt.Printf("  Completed:         %d\n", jobStats.Completed)
	fmt.Printf("  Failed:            %d\n", jobStats.Failed)
	fmt.Printf("  Cancelled:         %d\n", jobStats.Cancelled)

	return nil
}
