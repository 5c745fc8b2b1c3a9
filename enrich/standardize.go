package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tallybill/tally/db"
	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/location"
	"github.com/tallybill/tally/logger"
	"github.com/tallybill/tally/pulse/async"
)

// standardizedFields are the fields a provider result may rewrite, in
// audit order.
var standardizedFields = []string{"address1", "address2", "city", "state", "zip", "country"}

// AddrStandardizeHandler sweeps enabled locations that have not been
// address-standardized, applies the provider's cleaned form, and writes a
// field-level audit row for every change. Each location commits in its
// own transaction.
type AddrStandardizeHandler struct {
	conn         *sql.DB
	queue        *async.Queue
	standardizer location.AddressStandardizer
	batchSize    int
	log          *zap.SugaredLogger
}

func (h *AddrStandardizeHandler) Name() string { return HandlerAddrStandardize }

func (h *AddrStandardizeHandler) Execute(ctx context.Context, job *async.Job) error {
	locs, err := location.NewStore(h.conn).ListUnclean(h.batch())
	if err != nil {
		return err
	}

	job.Progress.Total = len(locs)
	if err := h.queue.UpdateJob(job); err != nil {
		return err
	}
	if len(locs) == 0 {
		return nil
	}

	done := 0
	skipped := 0
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return err
		}

		std, err := h.standardizer.Standardize(ctx, loc)
		if err != nil {
			skipped++
			h.log.Warnw("Address standardization failed, skipping location",
				logger.FieldLocation, loc.Locationnum,
				logger.FieldError, err)
			continue
		}

		if err := h.applyResult(job.ID, loc, std); err != nil {
			return err
		}

		done++
		job.UpdateProgress(done, fmt.Sprintf("%d/%d addresses standardized", done, len(locs)))
		if err := h.queue.UpdateJob(job); err != nil {
			return err
		}
	}

	h.log.Infow("Address standardization complete",
		"standardized", done,
		"skipped", skipped,
		logger.FieldTotal, len(locs))
	return nil
}

// EnqueueAddrStandardize queues a standardization sweep.
func EnqueueAddrStandardize(queue *async.Queue) (*async.Job, error) {
	job, err := async.NewJob(HandlerAddrStandardize, "sweep", nil, 0)
	if err != nil {
		return nil, err
	}
	if err := queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// applyResult diffs the provider result against the stored fields,
// writes one audit row per changed field, and marks the location clean.
// The update and its audit trail commit together.
func (h *AddrStandardizeHandler) applyResult(jobID string, loc *location.Location, std *location.StandardizedAddress) error {
	cleaned := *loc
	cleaned.Address1 = std.Address1
	cleaned.Address2 = std.Address2
	cleaned.City = std.City
	cleaned.State = std.State
	cleaned.Zip = std.Zip
	cleaned.Country = std.Country
	cleaned.AddrClean = true

	return db.WithTx(h.conn, func(tx *sql.Tx) error {
		store := location.NewStore(tx)
		now := time.Now()

		for _, field := range standardizedFields {
			oldValue := loc.FieldValue(field)
			newValue := cleaned.FieldValue(field)
			if oldValue == newValue {
				continue
			}
			audit := &location.AuditRecord{
				Locationnum: loc.Locationnum,
				Field:       field,
				OldValue:    oldValue,
				NewValue:    newValue,
				Job:         jobID,
				ChangedAt:   now,
			}
			if err := store.InsertAudit(audit); err != nil {
				return err
			}
		}

		if err := store.UpdateLocation(&cleaned); err != nil {
			return errors.Wrapf(err, "applying standardized address to location %d", loc.Locationnum)
		}
		return nil
	})
}

func (h *AddrStandardizeHandler) batch() int {
	if h.batchSize > 0 {
		return h.batchSize
	}
	return DefaultBatchSize
}
