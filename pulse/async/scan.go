package async

import (
	"database/sql"
)

// jobScanArgs holds the nullable intermediates for scanning a job row.
type jobScanArgs struct {
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// scanTargets returns scan destinations for the job and its nullable
// intermediates, in jobSelectColumns order.
func (a *jobScanArgs) scanTargets(job *Job) []interface{} {
	return []interface{}{
		&job.ID,
		&job.HandlerName,
		&a.Payload,
		&job.Source,
		&job.Status,
		&job.Progress.Current,
		&job.Progress.Total,
		&job.Progress.Text,
		&a.ErrorMsg,
		&job.RetryCount,
		&job.CreatedAt,
		&job.UpdatedAt,
		&a.StartedAt,
		&a.CompletedAt,
	}
}

// apply copies the scanned nullable intermediates onto the job.
func (a *jobScanArgs) apply(job *Job) {
	if a.Payload.Valid {
		job.Payload = []byte(a.Payload.String)
	}
	if a.ErrorMsg.Valid {
		job.Error = a.ErrorMsg.String
	}
	if a.StartedAt.Valid {
		job.StartedAt = &a.StartedAt.Time
	}
	if a.CompletedAt.Valid {
		job.CompletedAt = &a.CompletedAt.Time
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob scans one job from a row or rows cursor.
func scanJob(row rowScanner, job *Job) error {
	var args jobScanArgs
	if err := row.Scan(args.scanTargets(job)...); err != nil {
		return err
	}
	args.apply(job)
	return nil
}

// jobSelectColumns is the standard column list for job SELECT queries.
const jobSelectColumns = `id, handler_name, payload, source, status,
	progress_current, progress_total, progress_text,
	error, retry_count,
	created_at, updated_at, started_at, completed_at`
