package async

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybill/tally/errors"
	tallytest "github.com/tallybill/tally/internal/testing"
)

func newTestJob(t *testing.T, handler string) *Job {
	t.Helper()
	job, err := NewJob(handler, "test", json.RawMessage(`{"locationnum":1}`), 10)
	require.NoError(t, err)
	return job
}

func TestStoreCreateAndGetJob(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	job := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "enrich.census-refresh", got.HandlerName)
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.JSONEq(t, `{"locationnum":1}`, string(got.Payload))
	assert.Equal(t, 10, got.Progress.Total)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	// Timestamps must scan back as times, not raw column text.
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Second)
	assert.WithinDuration(t, job.UpdatedAt, got.UpdatedAt, time.Second)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStoreGetJobNotFound(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	_, err := store.GetJob("no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreUpdateJobLifecycle(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	job := newTestJob(t, "enrich.coord-backfill")
	require.NoError(t, store.CreateJob(job))

	job.Start()
	job.UpdateProgress(3, "3/10 locations")
	require.NoError(t, store.UpdateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, got.Status)
	assert.Equal(t, 3, got.Progress.Current)
	assert.Equal(t, "3/10 locations", got.Progress.Text)
	require.NotNil(t, got.StartedAt)

	job.Fail(assert.AnError)
	require.NoError(t, store.UpdateJob(job))

	got, err = store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, assert.AnError.Error(), got.Error)
	require.NotNil(t, got.CompletedAt)
}

func TestStoreHasActiveJob(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	active, err := store.HasActiveJob("enrich.coord-backfill")
	require.NoError(t, err)
	assert.False(t, active)

	job := newTestJob(t, "enrich.coord-backfill")
	require.NoError(t, store.CreateJob(job))

	active, err = store.HasActiveJob("enrich.coord-backfill")
	require.NoError(t, err)
	assert.True(t, active)

	// Other handlers are unaffected.
	active, err = store.HasActiveJob("enrich.census-refresh")
	require.NoError(t, err)
	assert.False(t, active)

	// Completed jobs no longer count.
	job.Complete()
	require.NoError(t, store.UpdateJob(job))

	active, err = store.HasActiveJob("enrich.coord-backfill")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestStoreListQueuedIsFIFO(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	first := newTestJob(t, "enrich.census-refresh")
	first.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.CreateJob(first))

	second := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, store.CreateJob(second))

	jobs, err := store.ListQueued(1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, first.ID, jobs[0].ID)
}

func TestStoreDeleteJob(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	job := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, store.CreateJob(job))
	require.NoError(t, store.DeleteJob(job.ID))

	err := store.DeleteJob(job.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreCleanupOldJobs(t *testing.T) {
	store := NewStore(tallytest.CreateTestDB(t))

	old := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, store.CreateJob(old))
	old.Complete()
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.UpdateJob(old))

	fresh := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, store.CreateJob(fresh))
	fresh.Complete()
	require.NoError(t, store.UpdateJob(fresh))

	removed, err := store.CleanupOldJobs(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetJob(old.ID)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = store.GetJob(fresh.ID)
	assert.NoError(t, err)
}
