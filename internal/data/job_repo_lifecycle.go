package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
	"github.com/jackc/pgx/v5"
)

// Enqueue persists a prepared job and returns the stored row. Status defaults
// to QUEUED and createdAt to now when unset; the bearer token is encrypted
// before it touches the table.
func (r *ReportJobRepo) Enqueue(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, apperrors.Validation("job is required")
	}
	if job.JobID == "" {
		return nil, apperrors.Validation("job id is required")
	}

	token, err := r.cipher.Seal(job.BearerToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt bearer token for job %s: %w", job.JobID, err)
	}

	now := r.timeProvider.Now().UTC()
	status := job.Status
	if status == "" {
		status = model.JobStatusQueued
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO report_jobs (` + reportJobColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING ` + reportJobColumnList

	created, err := r.getByQuery(ctx, query,
		job.JobID, status, job.Priority, job.JobSource, job.UserRole,
		job.ReportType, job.TargetSystem, job.DataFormat, job.ChunkSize,
		job.TenantID, job.UserID, requestDataArg(job.RequestData), token,
		job.Progress, job.TotalRecords, job.ProcessedRecords, job.ResultPath,
		job.ErrorMessage, job.ParentJobID, job.EstimatedCompletionTime,
		createdAt, job.StartedAt, job.CompletedAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", job.JobID, apperrors.MapDBError(err))
	}
	return created, nil
}

// Claim performs the QUEUED to PROCESSING compare-and-set and stamps
// startedAt. A lost race, a missing job, and a non-queued job all land on
// (nil, nil): the dispatcher treats every one of those as "not mine".
func (r *ReportJobRepo) Claim(ctx context.Context, jobID string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	query := `
		UPDATE report_jobs
		SET status = 'PROCESSING', started_at = $2, updated_at = $2
		WHERE job_id = $1 AND status = 'QUEUED'
		RETURNING ` + reportJobColumnList

	job, err := r.getByQuery(ctx, query, jobID, now)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return job, nil
}

// UpdateStatus applies a transition-checked status change. The WHERE clause
// encodes the legal transition table, so a stale caller simply matches no
// row and gets false back. errorMessage is written from the params on every
// accepted transition: nil clears a previous message.
func (r *ReportJobRepo) UpdateStatus(ctx context.Context, params core.UpdateStatusParams) (bool, error) {
	if !params.Status.Valid() {
		return false, apperrors.Validationf("invalid status %q", string(params.Status))
	}

	now := r.timeProvider.Now().UTC()
	query := `
		UPDATE report_jobs
		SET status = $2,
		    error_message = $3,
		    started_at = CASE WHEN $2 = 'PROCESSING' THEN $4 ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('COMPLETED', 'FAILED', 'CANCELLED') THEN $4 ELSE completed_at END,
		    updated_at = $4
		WHERE job_id = $1
		  AND ((status = 'QUEUED' AND $2 IN ('PROCESSING', 'CANCELLED'))
		    OR (status = 'PROCESSING' AND $2 IN ('COMPLETED', 'FAILED', 'CANCELLED')))
	`
	res, err := r.DB.ExecContext(ctx, query, params.JobID, string(params.Status), params.ErrorMessage, now)
	if err != nil {
		return false, fmt.Errorf("update status for job %s: %w", params.JobID, apperrors.MapDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetProgress persists per-chunk progress. A nil Total leaves the stored
// total untouched so a late count never erases an earlier one.
func (r *ReportJobRepo) SetProgress(ctx context.Context, params core.SetProgressParams) error {
	query := `
		UPDATE report_jobs
		SET processed_records = $2,
		    total_records = COALESCE($3::bigint, total_records),
		    progress = $4,
		    updated_at = $5
		WHERE job_id = $1
	`
	res, err := r.DB.ExecContext(ctx, query,
		params.JobID, params.Processed, params.Total, params.Progress, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set progress for job %s: %w", params.JobID, apperrors.MapDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set progress rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("job %s not found", params.JobID)
	}
	return nil
}

// SetResult atomically completes a PROCESSING job: status COMPLETED,
// progress 100, processedRecords aligned to the stored total, completedAt
// stamped. A second call matches no row and reports false.
func (r *ReportJobRepo) SetResult(ctx context.Context, params core.SetResultParams) (bool, error) {
	now := r.timeProvider.Now().UTC()
	query := `
		UPDATE report_jobs
		SET status = 'COMPLETED',
		    progress = 100,
		    processed_records = COALESCE(total_records, processed_records),
		    result_path = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE job_id = $1 AND status = 'PROCESSING'
	`
	res, err := r.DB.ExecContext(ctx, query, params.JobID, params.ResultPath, now)
	if err != nil {
		return false, fmt.Errorf("set result for job %s: %w", params.JobID, apperrors.MapDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set result rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetSource overwrites the job's origin marker.
func (r *ReportJobRepo) SetSource(ctx context.Context, jobID string, source model.JobSource) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE report_jobs SET job_source = $2, updated_at = $3 WHERE job_id = $1
	`, jobID, string(source), r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set source for job %s: %w", jobID, apperrors.MapDBError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set source rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("job %s not found", jobID)
	}
	return nil
}

// requestDataArg passes request JSON through as-is, mapping empty payloads
// to NULL so the jsonb column never sees a zero-length document.
func requestDataArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
