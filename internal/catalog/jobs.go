package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, pipeline_id, file_id, position, kind, status, params,
	output_file_id, error_message, attempts, last_heartbeat, created_at, updated_at`

// GetJob returns the job with the given ID, or nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM jobs WHERE id = ?", jobColumns), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// JobsForPipeline returns a pipeline's jobs in position order.
func (s *Store) JobsForPipeline(ctx context.Context, pipelineID string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM jobs WHERE pipeline_id = ? ORDER BY position ASC`, jobColumns),
		pipelineID)
	if err != nil {
		return nil, fmt.Errorf("jobs for pipeline: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// JobByPosition returns the job at a given pipeline position, or nil when
// the position does not exist.
func (s *Store) JobByPosition(ctx context.Context, pipelineID string, position int) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM jobs WHERE pipeline_id = ? AND position = ?", jobColumns),
		pipelineID, position)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("job by position: %w", err)
	}
	return job, nil
}

// ActivateJob moves a job from pending to queued. It reports ok == false
// when the job was not pending; losing that race is normal under concurrent
// dispatch and reconciliation.
func (s *Store) ActivateJob(ctx context.Context, id string) (bool, error) {
	return s.transitionJob(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobQueued), timestamp(time.Now()), id, string(JobPending))
}

// ClaimJob moves a job from queued to running, stamps a heartbeat, and
// counts the attempt. Redeliveries of an already-claimed job report
// ok == false so the worker can acknowledge without reprocessing.
func (s *Store) ClaimJob(ctx context.Context, id string) (bool, error) {
	now := timestamp(time.Now())
	return s.transitionJob(ctx, `
		UPDATE jobs SET status = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobRunning), now, now, id, string(JobQueued))
}

// CompleteJob moves a running job to succeeded and records its output file.
func (s *Store) CompleteJob(ctx context.Context, id, outputFileID string) (bool, error) {
	return s.transitionJob(ctx, `
		UPDATE jobs SET status = ?, output_file_id = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobSucceeded), nullableString(outputFileID), timestamp(time.Now()),
		id, string(JobRunning))
}

// FailJob moves a running job to failed with a diagnostic message.
func (s *Store) FailJob(ctx context.Context, id, message string) (bool, error) {
	return s.transitionJob(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobFailed), nullableString(message), timestamp(time.Now()),
		id, string(JobRunning))
}

// RequeueJob moves a running job back to queued so it can be redelivered,
// keeping the failure message for operators. Used both for transient worker
// failures and for reclaiming jobs whose worker stopped heartbeating.
func (s *Store) RequeueJob(ctx context.Context, id, message string) (bool, error) {
	return s.transitionJob(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(JobQueued), nullableString(message), timestamp(time.Now()),
		id, string(JobRunning))
}

// TouchJob refreshes the heartbeat on a running job. A false result means
// the job is no longer running and the caller should stop heartbeating.
func (s *Store) TouchJob(ctx context.Context, id string) (bool, error) {
	return s.transitionJob(ctx, `
		UPDATE jobs SET last_heartbeat = ?
		WHERE id = ? AND status = ?`,
		timestamp(time.Now()), id, string(JobRunning))
}

// TouchQueued refreshes updated_at on a queued job. The reconciler uses it
// after republishing so the same job is not republished every sweep.
func (s *Store) TouchQueued(ctx context.Context, id string) (bool, error) {
	return s.transitionJob(ctx, `
		UPDATE jobs SET updated_at = ?
		WHERE id = ? AND status = ?`,
		timestamp(time.Now()), id, string(JobQueued))
}

// StaleRunning returns running jobs whose last heartbeat predates the cutoff.
func (s *Store) StaleRunning(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
		ORDER BY updated_at ASC`, jobColumns),
		string(JobRunning), timestamp(cutoff))
	if err != nil {
		return nil, fmt.Errorf("stale running jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// QueuedSince returns jobs that have sat queued without an update since the
// cutoff. These are candidates for republishing a delivery envelope.
func (s *Store) QueuedSince(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC`, jobColumns),
		string(JobQueued), timestamp(cutoff))
	if err != nil {
		return nil, fmt.Errorf("queued jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectJobs(rows)
}

// Health aggregates job counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return HealthSummary{}, fmt.Errorf("health: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summary HealthSummary
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("health: scan: %w", err)
		}
		summary.Total += count
		switch JobStatus(status) {
		case JobPending:
			summary.Pending = count
		case JobQueued:
			summary.Queued = count
		case JobRunning:
			summary.Running = count
		case JobSucceeded:
			summary.Succeeded = count
		case JobFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return HealthSummary{}, fmt.Errorf("health: %w", err)
	}
	return summary, nil
}

// QueueDepths counts queued jobs per worker family.
func (s *Store) QueueDepths(ctx context.Context) (map[Family]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, COUNT(1) FROM jobs WHERE status = ? GROUP BY kind",
		string(JobQueued))
	if err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depths := make(map[Family]int, 4)
	for _, family := range AllFamilies() {
		depths[family] = 0
	}
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("queue depths: scan: %w", err)
		}
		if parsed, ok := ParseActionKind(kind); ok {
			depths[parsed.Family()] += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}
	return depths, nil
}

func (s *Store) transitionJob(ctx context.Context, query string, args ...any) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("job transition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("job transition: %w", err)
	}
	return affected == 1, nil
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job           Job
		kind          string
		status        string
		params        sql.NullString
		outputFileID  sql.NullString
		errorMessage  sql.NullString
		lastHeartbeat sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := scanner.Scan(&job.ID, &job.PipelineID, &job.FileID, &job.Position,
		&kind, &status, &params, &outputFileID, &errorMessage, &job.Attempts,
		&lastHeartbeat, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Kind = ActionKind(kind)
	job.Status = JobStatus(status)
	job.OutputFileID = outputFileID.String
	job.ErrorMessage = errorMessage.String
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &job.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if lastHeartbeat.Valid && lastHeartbeat.String != "" {
		hb, parseErr := parseTimeString(lastHeartbeat.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse last_heartbeat: %w", parseErr)
		}
		job.LastHeartbeat = &hb
	}
	if job.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
