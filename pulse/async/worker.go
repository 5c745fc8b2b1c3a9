package async

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/logger"
)

const (
	// MaxRetries is the maximum number of retry attempts for failed jobs.
	MaxRetries = 2

	// MaxOrphanedJobsToRecover bounds how many stranded jobs are re-queued
	// on startup after a crash.
	MaxOrphanedJobsToRecover = 1000
)

// WorkerPoolConfig contains configuration for the worker pool.
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
	}
}

// WorkerPool polls the queue and executes jobs through the handler
// registry. Callers register handlers before Start.
type WorkerPool struct {
	queue      *Queue
	registry   *HandlerRegistry
	poolConfig WorkerPoolConfig
	parentCtx  context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	log        *zap.SugaredLogger
	mu         sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Handlers must be registered before calling Start.
func NewWorkerPool(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if poolCfg.Workers <= 0 {
		poolCfg.Workers = 1
	}
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = 5 * time.Second
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		queue:      NewQueue(db),
		registry:   NewHandlerRegistry(),
		poolConfig: poolCfg,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		log:        log.Named("pulse"),
	}
}

// Start recovers orphaned jobs and begins polling with the configured
// number of workers.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// A pool stopped earlier needs a fresh context before re-spawning.
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.log.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	}

	for i := 0; i < wp.poolConfig.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// recoverOrphanedJobs re-queues jobs stuck in "running" from an
// ungraceful shutdown. Handlers commit per record, so a recovered batch
// resumes where it left off.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	runningStatus := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(&runningStatus, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	wp.log.Infow("Recovering jobs orphaned by previous shutdown", logger.FieldCount, len(orphaned))
	for _, job := range orphaned {
		job.Status = JobStatusQueued
		job.Error = ""
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.log.Warnw("Failed to re-queue orphaned job", logger.FieldJobID, job.ID, logger.FieldError, err)
			continue
		}
		wp.log.Debugw("Re-queued orphaned job", logger.FieldJobID, job.ID, logger.FieldHandler, job.HandlerName)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to checkpoint,
// up to a timeout.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.log.Infow("Worker pool stopped")
	case <-time.After(timeout):
		wp.log.Warnw("Worker pool stop timed out, jobs may still be checkpointing", "timeout", timeout)
	}
}

// worker polls for jobs until the pool context is cancelled.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(); err != nil {
				select {
				case <-wp.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) {
					// Database closed during shutdown.
					return
				}

				errorCount++
				wp.log.Errorw("Worker error processing job",
					"worker_id", id,
					logger.FieldError, err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wp.log.Warnw("Worker backing off after consecutive errors",
						"worker_id", id, "backoff", backoff)
					time.Sleep(backoff)
					backoff = min(backoff*2, maxBackoff)
				}
			} else {
				errorCount = 0
				backoff = time.Second
			}
		}
	}
}

// processNextJob dequeues and executes one job, if any is available.
func (wp *WorkerPool) processNextJob() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil
	}

	if err := wp.registry.Execute(wp.ctx, job); err != nil {
		if errors.Is(err, ErrRetryScheduled) {
			// RetryableError already re-queued the job.
			return nil
		}
		select {
		case <-wp.ctx.Done():
			// Shutdown mid-job: re-queue with progress intact rather
			// than marking it failed.
			job.Status = JobStatusQueued
			if updateErr := wp.queue.UpdateJob(job); updateErr != nil {
				wp.log.Errorw("Failed to re-queue job cancelled by shutdown",
					logger.FieldJobID, job.ID, logger.FieldError, updateErr)
			}
			return nil
		default:
			return wp.queue.FailJob(job.ID, err)
		}
	}

	return wp.queue.CompleteJob(job.ID)
}

// Queue returns the job queue (useful for enqueuing jobs).
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Registry returns the handler registry. Register handlers here before
// calling Start.
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Workers returns the number of concurrent workers configured.
func (wp *WorkerPool) Workers() int {
	return wp.poolConfig.Workers
}

// ErrRetryScheduled marks an error whose job has already been re-queued
// for another attempt. The worker treats it as handled.
var ErrRetryScheduled = errors.New("retry scheduled")

// IsRetryScheduled reports whether the error marks an already re-queued
// retry.
func IsRetryScheduled(err error) bool {
	return errors.Is(err, ErrRetryScheduled)
}

// RetryableError re-queues the job for another attempt, or returns a
// final wrapped error once MaxRetries is exhausted.
func RetryableError(queue *Queue, job *Job, operation string, err error, log *zap.SugaredLogger) error {
	if job.RetryCount < MaxRetries {
		job.RetryCount++
		job.Error = fmt.Sprintf("%s (retry %d/%d): %v", operation, job.RetryCount, MaxRetries, err)
		job.Status = JobStatusQueued
		if updateErr := queue.UpdateJob(job); updateErr != nil {
			log.Warnw("Failed to update job for retry", logger.FieldError, updateErr)
		} else {
			log.Infow("Retry scheduled",
				"retry_count", job.RetryCount,
				"max_retries", MaxRetries,
				logger.FieldOperation, operation)
		}
		return errors.Wrapf(ErrRetryScheduled, "%s: %v", operation, err)
	}
	log.Warnw("Max retries exceeded", "max_retries", MaxRetries, logger.FieldOperation, operation)
	return errors.Wrapf(err, "%s after %d retries", operation, MaxRetries)
}
