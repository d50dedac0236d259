// Package queue implements a FIFO durable work queue keyed by queue name,
// with fire-and-forget enqueue and cancellation-by-scan, built on Postgres
// (SELECT ... FOR UPDATE SKIP LOCKED).
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// FnProcessClipUploaded is the job function name the Worker dispatches on,
// enqueued by the API's upload/finalize handler.
const FnProcessClipUploaded = "process_clip_uploaded"

type ClipUploadedPayload struct {
	EventID        string `json:"event_id"`
	SessionID      string `json:"session_id"`
	DeviceID       string `json:"device_id"`
	ClipBlobName   string `json:"clip_blob_name"`
	ClipContainer  string `json:"clip_container"`
	ClipMime       string `json:"clip_mime"`
	AnalysisPrompt string `json:"analysis_prompt,omitempty"`
}

type Job struct {
	JobID     string
	QueueName string
	FnName    string
	Payload   json.RawMessage
}

type Queue struct {
	db   *sql.DB
	name string
}

func New(db *sql.DB, name string) *Queue {
	return &Queue{db: db, name: name}
}

// Enqueue is fire-and-forget. Failures are logged and nil is returned;
// they never propagate. The event row is already persisted, so a lost job
// is recoverable by operator reprocess.
func (q *Queue) Enqueue(ctx context.Context, fnName string, payload ClipUploadedPayload) *string {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("queue enqueue: marshal payload failed", "error", err)
		return nil
	}

	jobID := uuid.Must(uuid.NewV7()).String()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queue_jobs (job_id, queue_name, fn_name, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, 'pending', now())`,
		jobID, q.name, fnName, raw)
	if err != nil {
		slog.Error("queue enqueue: insert failed", "error", err)
		return nil
	}
	return &jobID
}

// Dequeue pops the oldest pending job for this queue, if any, marking it
// dispatched. Never blocks; callers poll.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT job_id, queue_name, fn_name, payload FROM queue_jobs
		 WHERE queue_name = $1 AND status = 'pending'
		 ORDER BY created_at ASC
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`, q.name)

	var j Job
	if err := row.Scan(&j.JobID, &j.QueueName, &j.FnName, &j.Payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE queue_jobs SET status = 'dispatched' WHERE job_id = $1`, j.JobID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &j, nil
}

// MarkDone records terminal completion of a dispatched job.
func (q *Queue) MarkDone(ctx context.Context, jobID string) {
	if _, err := q.db.ExecContext(ctx, `UPDATE queue_jobs SET status = 'done' WHERE job_id = $1`, jobID); err != nil {
		slog.Warn("queue mark done failed", "job_id", jobID, "error", err)
	}
}

// CancelSessionJobs cancels every still-pending job whose
// payload.session_id matches sessionID, tolerating a queue-unavailable
// error by returning 0.
func (q *Queue) CancelSessionJobs(ctx context.Context, sessionID string) int {
	res, err := q.db.ExecContext(ctx,
		`UPDATE queue_jobs SET status = 'canceled'
		 WHERE queue_name = $1 AND status = 'pending' AND payload ->> 'session_id' = $2`,
		q.name, sessionID)
	if err != nil {
		slog.Warn("cancel session jobs failed", "session_id", sessionID, "error", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
