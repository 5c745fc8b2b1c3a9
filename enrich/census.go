package enrich

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/location"
	"github.com/tallybill/tally/logger"
	"github.com/tallybill/tally/pulse/async"
)

// CensusRefreshPayload identifies the location to refresh.
type CensusRefreshPayload struct {
	Locationnum int64 `json:"locationnum"`
}

// CensusRefreshHandler re-resolves the census tract for one location and
// stores the canonical form. Running it twice is harmless: the second
// pass writes the same tract.
type CensusRefreshHandler struct {
	conn   *sql.DB
	tracts location.TractLookup
	log    *zap.SugaredLogger
}

func (h *CensusRefreshHandler) Name() string { return HandlerCensusRefresh }

func (h *CensusRefreshHandler) Execute(ctx context.Context, job *async.Job) error {
	var payload CensusRefreshPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "decoding census refresh payload")
	}
	if payload.Locationnum == 0 {
		return errors.New("census refresh payload missing locationnum")
	}

	store := location.NewStore(h.conn)
	loc, err := store.GetLocation(payload.Locationnum)
	if err != nil {
		return errors.Wrapf(err, "loading location %d", payload.Locationnum)
	}
	if loc.Disabled {
		h.log.Debugw("Skipping census refresh for disabled location",
			logger.FieldLocation, loc.Locationnum)
		return nil
	}

	tract, year, err := h.tracts.LookupTract(ctx, loc)
	if err != nil {
		return errors.Wrapf(err, "looking up tract for location %d", loc.Locationnum)
	}

	canonical, err := location.NormalizeCensusTract(tract)
	if err != nil {
		return errors.Wrapf(err, "provider returned malformed tract %q", tract)
	}

	if err := store.UpdateCensus(loc.Locationnum, canonical, year); err != nil {
		return err
	}

	h.log.Infow("Refreshed census tract",
		logger.FieldLocation, loc.Locationnum,
		"censustract", canonical,
		"censusyear", year)
	return nil
}

// EnqueueCensusRefresh queues a tract refresh for one location.
func EnqueueCensusRefresh(queue *async.Queue, locationnum int64) (*async.Job, error) {
	payload, err := json.Marshal(CensusRefreshPayload{Locationnum: locationnum})
	if err != nil {
		return nil, errors.Wrap(err, "encoding census refresh payload")
	}

	job, err := async.NewJob(HandlerCensusRefresh, locationSource(locationnum), payload, 1)
	if err != nil {
		return nil, err
	}
	if err := queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}
