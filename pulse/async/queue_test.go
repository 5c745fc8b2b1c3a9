package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tallytest "github.com/tallybill/tally/internal/testing"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	queue := NewQueue(tallytest.CreateTestDB(t))

	job := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, queue.Enqueue(job))

	got, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	// Queue drained.
	got, err = queue.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueueCompleteAndFail(t *testing.T) {
	queue := NewQueue(tallytest.CreateTestDB(t))

	job := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, queue.Enqueue(job))
	require.NoError(t, queue.CompleteJob(job.ID))

	got, err := queue.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)

	other := newTestJob(t, "enrich.census-refresh")
	require.NoError(t, queue.Enqueue(other))
	require.NoError(t, queue.FailJob(other.ID, assert.AnError))

	got, err = queue.GetJob(other.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, assert.AnError.Error(), got.Error)
}

func TestQueueCancelJob(t *testing.T) {
	queue := NewQueue(tallytest.CreateTestDB(t))

	job := newTestJob(t, "enrich.addr-standardize")
	require.NoError(t, queue.Enqueue(job))
	require.NoError(t, queue.CancelJob(job.ID, "operator request"))

	got, err := queue.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
	assert.Equal(t, "operator request", got.Error)
}

func TestQueueHasActive(t *testing.T) {
	queue := NewQueue(tallytest.CreateTestDB(t))

	active, err := queue.HasActive("enrich.coord-backfill")
	require.NoError(t, err)
	assert.False(t, active)

	job := newTestJob(t, "enrich.coord-backfill")
	require.NoError(t, queue.Enqueue(job))

	active, err = queue.HasActive("enrich.coord-backfill")
	require.NoError(t, err)
	assert.True(t, active)

	// Running still counts as active.
	_, err = queue.Dequeue()
	require.NoError(t, err)
	active, err = queue.HasActive("enrich.coord-backfill")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, queue.CompleteJob(job.ID))
	active, err = queue.HasActive("enrich.coord-backfill")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestQueueStats(t *testing.T) {
	queue := NewQueue(tallytest.CreateTestDB(t))

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Enqueue(newTestJob(t, "enrich.census-refresh")))
	}
	job, err := queue.Dequeue()
	require.NoError(t, err)
	require.NoError(t, queue.CompleteJob(job.ID))

	stats, err := queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 3, stats.Total)
}
