package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/caseworks/report-engine/internal/core"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// DeleteTerminalBefore purges terminal jobs whose completedAt predates the
// retention cutoff, oldest first, at most BatchSize rows per call. Purged ids
// come back with their result paths so the sweeper can unlink artifacts. The
// parent FK is declared ON DELETE SET NULL, so purging a parent never strands
// a surviving dependent.
func (r *ReportJobRepo) DeleteTerminalBefore(ctx context.Context, params core.DeleteTerminalParams) ([]core.DeletedJob, error) {
	cutoff := r.timeProvider.Now().UTC().Add(-params.MaxAge)

	inner := `
		SELECT job_id FROM report_jobs
		WHERE status IN ('COMPLETED', 'FAILED', 'CANCELLED')
		  AND completed_at IS NOT NULL
		  AND completed_at < $1
		ORDER BY completed_at ASC
	`
	args := []any{cutoff}
	if params.BatchSize > 0 {
		inner += ` LIMIT $2`
		args = append(args, params.BatchSize)
	}

	query := `
		DELETE FROM report_jobs
		WHERE job_id IN (` + inner + `)
		RETURNING job_id, result_path
	`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("purge terminal jobs: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	var deleted []core.DeletedJob
	for rows.Next() {
		var d core.DeletedJob
		var resultPath sql.NullString
		if err := rows.Scan(&d.JobID, &resultPath); err != nil {
			return nil, fmt.Errorf("scan purged job: %w", err)
		}
		d.ResultPath = resultPath.String
		deleted = append(deleted, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purged jobs: %w", err)
	}
	return deleted, nil
}

// WithAdvisoryLock runs fn while holding a session-level advisory lock on
// key. The lock rides a dedicated connection held for the duration, so fn is
// free to issue queries through the pool without touching the lock session.
func (r *ReportJobRepo) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return fmt.Errorf("acquire advisory lock %d: %w", key, err)
	}
	defer func() {
		// Unlock with a fresh context: the caller's may already be done.
		if _, uerr := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key); uerr != nil && r.logger != nil {
			r.logger.Warn("advisory unlock failed", "key", key, "error", uerr)
		}
	}()

	return fn(ctx)
}
