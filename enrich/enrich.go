// Package enrich provides the background location-enrichment jobs:
// census tract refresh, coordinate backfill, and address standardization.
// Each is a pulse/async handler; batches commit per record so a crash
// loses at most one unit of work.
package enrich

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/location"
	"github.com/tallybill/tally/pulse/async"
)

// Handler names, as registered with the pulse handler registry.
const (
	HandlerCensusRefresh   = "enrich.census-refresh"
	HandlerCoordBackfill   = "enrich.coord-backfill"
	HandlerAddrStandardize = "enrich.addr-standardize"
)

// DefaultBatchSize bounds how many locations one batch job sweeps.
const DefaultBatchSize = 1000

// ErrAlreadyActive reports that a batch job of the same kind is already
// queued or running. Duplicate sweeps would double-spend the provider
// quota for no benefit.
var ErrAlreadyActive = errors.New("a job of this kind is already active")

func locationSource(locationnum int64) string {
	return fmt.Sprintf("location:%d", locationnum)
}

// Providers bundles the external services the enrichment handlers call.
type Providers struct {
	Tracts       location.TractLookup
	Geocoder     location.Geocoder
	Standardizer location.AddressStandardizer

	// GeocodeLimiter throttles coordinate lookups to the provider quota.
	GeocodeLimiter *rate.Limiter

	// BatchSize bounds one sweep; 0 means DefaultBatchSize.
	BatchSize int
}

func (p Providers) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

// RegisterHandlers wires all enrichment handlers into the registry.
// Handlers whose provider is absent are skipped; the corresponding jobs
// then fail at dispatch rather than at execution.
func RegisterHandlers(registry *async.HandlerRegistry, conn *sql.DB, queue *async.Queue, providers Providers, log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if providers.Tracts != nil {
		registry.Register(&CensusRefreshHandler{
			conn:   conn,
			tracts: providers.Tracts,
			log:    log,
		})
	}
	if providers.Geocoder != nil {
		registry.Register(&CoordBackfillHandler{
			conn:      conn,
			queue:     queue,
			geocoder:  providers.Geocoder,
			limiter:   providers.GeocodeLimiter,
			batchSize: providers.batchSize(),
			log:       log,
		})
	}
	if providers.Standardizer != nil {
		registry.Register(&AddrStandardizeHandler{
			conn:         conn,
			queue:        queue,
			standardizer: providers.Standardizer,
			batchSize:    providers.batchSize(),
			log:          log,
		})
	}
}
