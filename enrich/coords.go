package enrich

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/location"
	"github.com/tallybill/tally/logger"
	"github.com/tallybill/tally/pulse/async"
)

// CoordBackfillHandler sweeps enabled locations with no coordinates and
// geocodes them one at a time. Each row commits individually and the
// worklist is "still missing coordinates", so an interrupted sweep
// resumes where it stopped. Provider failures skip the record; the batch
// continues.
type CoordBackfillHandler struct {
	conn      *sql.DB
	queue     *async.Queue
	geocoder  location.Geocoder
	limiter   *rate.Limiter
	batchSize int
	log       *zap.SugaredLogger
}

func (h *CoordBackfillHandler) Name() string { return HandlerCoordBackfill }

func (h *CoordBackfillHandler) Execute(ctx context.Context, job *async.Job) error {
	store := location.NewStore(h.conn)

	locs, err := store.ListMissingCoordinates(h.batch())
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
			// Shutdown: progress so far is committed, the worker
			// re-queues the job.
			return err
		}

		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lat, lon, err := h.geocoder.LookupCoordinates(ctx, loc)
		if err != nil {
			skipped++
			h.log.Warnw("Coordinate lookup failed, skipping location",
				logger.FieldLocation, loc.Locationnum,
				logger.FieldError, err)
			continue
		}

		if err := store.UpdateCoordinates(loc.Locationnum, lat, lon); err != nil {
			return err
		}

		done++
		job.UpdateProgress(done, fmt.Sprintf("%d/%d locations geocoded", done, len(locs)))
		if err := h.queue.UpdateJob(job); err != nil {
			return err
		}
	}

	h.log.Infow("Coordinate backfill complete",
		"geocoded", done,
		"skipped", skipped,
		logger.FieldTotal, len(locs))
	return nil
}

// EnqueueCoordBackfill queues a backfill sweep unless one is already
// queued or running.
func EnqueueCoordBackfill(queue *async.Queue) (*async.Job, error) {
	active, err := queue.HasActive(HandlerCoordBackfill)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, errors.Wrap(ErrAlreadyActive, "coordinate backfill")
	}

	job, err := async.NewJob(HandlerCoordBackfill, "sweep", nil, 0)
	if err != nil {
		return nil, err
	}
	if err := queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (h *CoordBackfillHandler) batch() int {
	if h.batchSize > 0 {
		return h.batchSize
	}
	return DefaultBatchSize
}
