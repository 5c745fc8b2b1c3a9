package enrich

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tallybill/tally/errors"
	tallytest "github.com/tallybill/tally/internal/testing"
	"github.com/tallybill/tally/internal/util"
	"github.com/tallybill/tally/location"
	"github.com/tallybill/tally/pulse/async"
)

type fakeTracts struct {
	tract string
	year  int
	err   error
}

func (f *fakeTracts) LookupTract(ctx context.Context, loc *location.Location) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	return f.tract, f.year, nil
}

type fakeGeocoder struct {
	lat, lon float64
	failFor  map[int64]bool
	calls    int
}

func (f *fakeGeocoder) LookupCoordinates(ctx context.Context, loc *location.Location) (float64, float64, error) {
	f.calls++
	if f.failFor[loc.Locationnum] {
		return 0, 0, errors.New("provider unavailable")
	}
	return f.lat, f.lon, nil
}

type fakeStandardizer struct {
	clean func(loc *location.Location) *location.StandardizedAddress
	err   error
}

func (f *fakeStandardizer) Standardize(ctx context.Context, loc *location.Location) (*location.StandardizedAddress, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clean(loc), nil
}

func insertLocation(t *testing.T, conn *sql.DB, loc *location.Location) *location.Location {
	t.Helper()
	require.NoError(t, location.NewStore(conn).InsertLocation(loc))
	return loc
}

func springfield(custnum int64) *location.Location {
	return &location.Location{
		Custnum:  custnum,
		Address1: "123 main st",
		City:     "springfield",
		State:    "IL",
		Zip:      "62704",
		Country:  "US",
	}
}

func runJob(t *testing.T, queue *async.Queue, handler async.JobHandler, job *async.Job) error {
	t.Helper()
	require.NoError(t, queue.Enqueue(job))
	dequeued, err := queue.Dequeue()
	require.NoError(t, err)
	require.Equal(t, job.ID, dequeued.ID)
	return handler.Execute(context.Background(), dequeued)
}

func TestCensusRefreshCanonicalizesTract(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	loc := insertLocation(t, conn, springfield(1))

	handler := &CensusRefreshHandler{
		conn:   conn,
		tracts: &fakeTracts{tract: "12345678912", year: 2020},
		log:    zap.NewNop().Sugar(),
	}

	payload, err := json.Marshal(CensusRefreshPayload{Locationnum: loc.Locationnum})
	require.NoError(t, err)
	job, err := async.NewJob(HandlerCensusRefresh, "test", payload, 1)
	require.NoError(t, err)

	require.NoError(t, handler.Execute(context.Background(), job))

	got, err := location.NewStore(conn).GetLocation(loc.Locationnum)
	require.NoError(t, err)
	assert.Equal(t, "123456789.12", got.Censustract)
	assert.Equal(t, 2020, got.Censusyear)

	// Idempotent: a second run writes the same canonical tract.
	require.NoError(t, handler.Execute(context.Background(), job))
	got, err = location.NewStore(conn).GetLocation(loc.Locationnum)
	require.NoError(t, err)
	assert.Equal(t, "123456789.12", got.Censustract)
}

func TestCensusRefreshRejectsMalformedProviderTract(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	loc := insertLocation(t, conn, springfield(1))

	handler := &CensusRefreshHandler{
		conn:   conn,
		tracts: &fakeTracts{tract: "not-a-tract"},
		log:    zap.NewNop().Sugar(),
	}

	payload, err := json.Marshal(CensusRefreshPayload{Locationnum: loc.Locationnum})
	require.NoError(t, err)
	job, err := async.NewJob(HandlerCensusRefresh, "test", payload, 1)
	require.NoError(t, err)

	err = handler.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed tract")
}

func TestCensusRefreshPayloadValidation(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	handler := &CensusRefreshHandler{
		conn:   conn,
		tracts: &fakeTracts{},
		log:    zap.NewNop().Sugar(),
	}

	job, err := async.NewJob(HandlerCensusRefresh, "test", json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	require.Error(t, handler.Execute(context.Background(), job))
}

func TestCoordBackfillSkipsFailuresAndResumes(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	queue := async.NewQueue(conn)

	a := insertLocation(t, conn, springfield(1))
	broken := springfield(2)
	broken.Address1 = "999 nowhere rd"
	b := insertLocation(t, conn, broken)
	c := insertLocation(t, conn, springfield(3))

	// One location already has coordinates and must not be touched.
	withCoords := springfield(4)
	withCoords.Latitude = util.Ptr(1.0)
	withCoords.Longitude = util.Ptr(2.0)
	insertLocation(t, conn, withCoords)

	geocoder := &fakeGeocoder{lat: 39.78, lon: -89.65, failFor: map[int64]bool{b.Locationnum: true}}
	handler := &CoordBackfillHandler{
		conn:     conn,
		queue:    queue,
		geocoder: geocoder,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		log:      zap.NewNop().Sugar(),
	}

	job, err := async.NewJob(HandlerCoordBackfill, "sweep", nil, 0)
	require.NoError(t, err)
	require.NoError(t, runJob(t, queue, handler, job))

	store := location.NewStore(conn)
	for _, locationnum := range []int64{a.Locationnum, c.Locationnum} {
		got, err := store.GetLocation(locationnum)
		require.NoError(t, err)
		require.True(t, got.HasCoordinates())
		assert.InDelta(t, 39.78, *got.Latitude, 0.001)
		assert.True(t, got.CoordAuto)
	}

	got, err := store.GetLocation(b.Locationnum)
	require.NoError(t, err)
	assert.False(t, got.HasCoordinates())

	persisted, err := queue.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted.Progress.Current)
	assert.Equal(t, 3, persisted.Progress.Total)

	// The provider saw only the three rows missing coordinates.
	assert.Equal(t, 3, geocoder.calls)

	// A second sweep only retries the failed row.
	geocoder.failFor = nil
	retry, err := async.NewJob(HandlerCoordBackfill, "sweep", nil, 0)
	require.NoError(t, err)
	require.NoError(t, runJob(t, queue, handler, retry))
	assert.Equal(t, 4, geocoder.calls)

	got, err = store.GetLocation(b.Locationnum)
	require.NoError(t, err)
	assert.True(t, got.HasCoordinates())
}

func TestEnqueueCoordBackfillExcludesDuplicates(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	queue := async.NewQueue(conn)

	first, err := EnqueueCoordBackfill(queue)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = EnqueueCoordBackfill(queue)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	// Once the first sweep finishes a new one may be queued.
	require.NoError(t, queue.CompleteJob(first.ID))
	_, err = EnqueueCoordBackfill(queue)
	require.NoError(t, err)
}

func TestAddrStandardizeWritesAuditTrail(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	queue := async.NewQueue(conn)

	loc := insertLocation(t, conn, springfield(1))

	standardizer := &fakeStandardizer{clean: func(l *location.Location) *location.StandardizedAddress {
		return &location.StandardizedAddress{
			Address1: "123 MAIN ST",
			Address2: l.Address2,
			City:     "SPRINGFIELD",
			State:    l.State,
			Zip:      l.Zip,
			Country:  l.Country,
		}
	}}
	handler := &AddrStandardizeHandler{
		conn:         conn,
		queue:        queue,
		standardizer: standardizer,
		log:          zap.NewNop().Sugar(),
	}

	job, err := async.NewJob(HandlerAddrStandardize, "sweep", nil, 0)
	require.NoError(t, err)
	require.NoError(t, runJob(t, queue, handler, job))

	got, err := location.NewStore(conn).GetLocation(loc.Locationnum)
	require.NoError(t, err)
	assert.Equal(t, "123 MAIN ST", got.Address1)
	assert.Equal(t, "SPRINGFIELD", got.City)
	assert.True(t, got.AddrClean)

	// Exactly the two changed fields got audit rows, tagged with the job.
	rows, err := conn.Query(
		"SELECT field, old_value, new_value, job FROM location_audit WHERE locationnum = ? ORDER BY field",
		loc.Locationnum)
	require.NoError(t, err)
	defer rows.Close()

	type auditRow struct{ field, oldValue, newValue, jobID string }
	var audits []auditRow
	for rows.Next() {
		var a auditRow
		require.NoError(t, rows.Scan(&a.field, &a.oldValue, &a.newValue, &a.jobID))
		audits = append(audits, a)
	}
	require.NoError(t, rows.Err())
	require.Len(t, audits, 2)
	assert.Equal(t, auditRow{"address1", "123 main st", "123 MAIN ST", job.ID}, audits[0])
	assert.Equal(t, auditRow{"city", "springfield", "SPRINGFIELD", job.ID}, audits[1])

	// A clean location is not swept again.
	second, err := async.NewJob(HandlerAddrStandardize, "sweep", nil, 0)
	require.NoError(t, err)
	require.NoError(t, runJob(t, queue, handler, second))

	var auditCount int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM location_audit").Scan(&auditCount))
	assert.Equal(t, 2, auditCount)
}

func TestAddrStandardizeSkipsProviderFailure(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	queue := async.NewQueue(conn)

	loc := insertLocation(t, conn, springfield(1))

	handler := &AddrStandardizeHandler{
		conn:         conn,
		queue:        queue,
		standardizer: &fakeStandardizer{err: errors.New("provider unavailable")},
		log:          zap.NewNop().Sugar(),
	}

	job, err := async.NewJob(HandlerAddrStandardize, "sweep", nil, 0)
	require.NoError(t, err)
	require.NoError(t, runJob(t, queue, handler, job))

	got, err := location.NewStore(conn).GetLocation(loc.Locationnum)
	require.NoError(t, err)
	assert.False(t, got.AddrClean)
}

func TestRegisterHandlers(t *testing.T) {
	conn := tallytest.CreateTestDB(t)
	queue := async.NewQueue(conn)
	registry := async.NewHandlerRegistry()

	RegisterHandlers(registry, conn, queue, Providers{
		Tracts:         &fakeTracts{},
		Geocoder:       &fakeGeocoder{},
		Standardizer:   &fakeStandardizer{},
		GeocodeLimiter: rate.NewLimiter(rate.Inf, 0),
	}, nil)

	assert.True(t, registry.Has(HandlerCensusRefresh))
	assert.True(t, registry.Has(HandlerCoordBackfill))
	assert.True(t, registry.Has(HandlerAddrStandardize))

	// Absent providers leave their handler unregistered.
	partial := async.NewHandlerRegistry()
	RegisterHandlers(partial, conn, queue, Providers{Tracts: &fakeTracts{}}, nil)
	assert.True(t, partial.Has(HandlerCensusRefresh))
	assert.False(t, partial.Has(HandlerCoordBackfill))
}
