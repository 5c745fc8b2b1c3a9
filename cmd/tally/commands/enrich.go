package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tallybill/tally/enrich"
	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/pulse/async"
)

// EnrichCmd enqueues background enrichment jobs. The jobs run inside a
// `tally pulse start` daemon with the matching provider wired.
var EnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enqueue background enrichment jobs",
	Long: `enrich — Enqueue background enrichment jobs.

Jobs are persisted to the queue and picked up by the Pulse daemon.

Examples:
  tally enrich census 42      # Refresh the census tract for location 42
  tally enrich coords         # Backfill missing coordinates (batch)
  tally enrich standardize    # Standardize unclean addresses (batch)`,
}

var enrichCensusCmd = &cobra.Command{
	Use:   "census <locationnum>",
	Short: "Enqueue a census tract refresh for one location",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrichCensus,
}

var enrichCoordsCmd = &cobra.Command{
	Use:   "coords",
	Short: "Enqueue a coordinate backfill batch",
	Long:  "Enqueue one batch job that geocodes locations missing coordinates, rate-limited to the provider quota. Refused while a backfill is already queued or running.",
	RunE:  runEnrichCoords,
}

var enrichStandardizeCmd = &cobra.Command{
	Use:   "standardize",
	Short: "Enqueue an address standardization batch",
	Long:  "Enqueue one batch job that standardizes unclean addresses, writing a field-level audit record for every change.",
	RunE:  runEnrichStandardize,
}

func init() {
	EnrichCmd.AddCommand(enrichCensusCmd)
	EnrichCmd.AddCommand(enrichCoordsCmd)
	EnrichCmd.AddCommand(enrichStandardizeCmd)
}

func enrichQueue() (*async.Queue, func(), error) {
	database, err := openDatabase("")
	if err != nil {
		return nil, nil, err
	}
	return async.NewQueue(database), func() { database.Close() }, nil
}

func runEnrichCensus(cmd *cobra.Command, args []string) error {
	locationnum, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || locationnum <= 0 {
		return errors.Newf("invalid location number %q", args[0])
	}

	queue, cleanup, err := enrichQueue()
	if err != nil {
		return err
	}
	defer cleanup()

	job, err := enrich.EnqueueCensusRefresh(queue, locationnum)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Queued census refresh for location %d (job %s)\n", locationnum, job.ID)
	return nil
}

func runEnrichCoords(cmd *cobra.Command, args []string) error {
	queue, cleanup, err := enrichQueue()
	if err != nil {
		return err
	}
	defer cleanup()

	job, err := enrich.EnqueueCoordBackfill(queue)
	if err != nil {
		if errors.Is(err, enrich.ErrAlreadyActive) {
			return errors.New("a coordinate backfill is already queued or running")
		}
		return err
	}

	fmt.Printf("✓ Queued coordinate backfill (job %s)\n", job.ID)
	return nil
}

func runEnrichStandardize(cmd *cobra.Command, args []string) error {
	queue, cleanup, err := enrichQueue()
	if err != nil {
		return err
	}
	defer cleanup()

	job, err := enrich.EnqueueAddrStandardize(queue)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Queued address standardization (job %s)\n", job.ID)
	return nil
}
