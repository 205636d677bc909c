package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/data/database"
	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
	"github.com/jackc/pgx/v5"
)

// GetByID returns the stored job or a NOT_FOUND error.
func (r *ReportJobRepo) GetByID(ctx context.Context, jobID string) (*model.Job, error) {
	query := `SELECT ` + reportJobColumnList + ` FROM report_jobs WHERE job_id = $1`
	job, err := r.getByQuery(ctx, query, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, apperrors.MapDBError(err))
	}
	return job, nil
}

// TopQueued returns up to limit QUEUED jobs in dispatch order: priority DESC,
// then createdAt ASC so equal priorities drain oldest first. A non-positive
// limit returns the whole queue.
func (r *ReportJobRepo) TopQueued(ctx context.Context, limit int) ([]*model.Job, error) {
	query := `
		SELECT ` + reportJobColumnList + `
		FROM report_jobs
		WHERE status = 'QUEUED'
		ORDER BY priority DESC, created_at ASC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	jobs, err := r.listByQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", apperrors.MapDBError(err))
	}
	return jobs, nil
}

// QueuedByPriority returns all QUEUED jobs in dispatch order.
func (r *ReportJobRepo) QueuedByPriority(ctx context.Context) ([]*model.Job, error) {
	return r.TopQueued(ctx, 0)
}

// ListByStatus returns jobs in the given status, newest first.
func (r *ReportJobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	return r.List(ctx, &model.JobListOptions{Status: &status, Limit: limit})
}

// ListByUserRole returns jobs enqueued under the given role, newest first.
func (r *ReportJobRepo) ListByUserRole(ctx context.Context, role string, limit int) ([]*model.Job, error) {
	return r.List(ctx, &model.JobListOptions{UserRole: &role, Limit: limit})
}

// List returns jobs matching the options, newest first.
func (r *ReportJobRepo) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}

	queryOpts := buildJobListOptions(opts)
	query, args := database.BuildListQuery(database.NewListQueryOptions("report_jobs", queryOpts...))

	jobs, err := r.listByQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", apperrors.MapDBError(err))
	}
	return jobs, nil
}

// ListVisible applies the caller's visibility filter in SQL: rows of the
// caller's role, and for tenant-bound callers only rows whose tenant matches
// or is the ALL sentinel. NULL tenants compare as empty strings so an
// unscoped row is visible exactly to callers without a tenant.
func (r *ReportJobRepo) ListVisible(ctx context.Context, params core.VisibleJobsParams) ([]*model.Job, error) {
	queryOpts := buildJobListOptions(&params.Options)
	queryOpts = append(queryOpts, database.WithCondition(
		database.WhereCond("user_role", database.Equal, params.Role),
	))
	if !params.SeesAll {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereRawCond(`(COALESCE(tenant_id, '') = $1 OR tenant_id = $2)`,
				params.TenantID, model.TenantAll),
		))
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("report_jobs", queryOpts...))
	jobs, err := r.listByQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visible jobs: %w", apperrors.MapDBError(err))
	}
	return jobs, nil
}

// buildJobListOptions translates list options into builder conditions. All
// listings share newest-first ordering.
func buildJobListOptions(opts *model.JobListOptions) []database.ListQueryOption {
	queryOpts := []database.ListQueryOption{
		database.WithColumns(reportJobColumns()...),
		database.WithOrderBy("created_at", "DESC"),
	}

	if opts.Status != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("status", database.Equal, string(*opts.Status)),
		))
	}
	if opts.UserRole != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("user_role", database.Equal, *opts.UserRole),
		))
	}
	if opts.ReportType != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("report_type", database.Equal, *opts.ReportType),
		))
	}
	if opts.JobSource != nil {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("job_source", database.Equal, string(*opts.JobSource)),
		))
	}
	if opts.Limit > 0 {
		queryOpts = append(queryOpts, database.WithLimit(opts.Limit))
	}
	if opts.Offset > 0 {
		queryOpts = append(queryOpts, database.WithOffset(opts.Offset))
	}
	return queryOpts
}

// FindByReportTypesAndRoleAndStatus backs fan-in dependency checks: all jobs
// of any listed report type, for the role, in the given status.
func (r *ReportJobRepo) FindByReportTypesAndRoleAndStatus(
	ctx context.Context,
	params core.DependencyLookupParams,
) ([]*model.Job, error) {
	if len(params.ReportTypes) == 0 {
		return nil, nil
	}

	queryOpts := []database.ListQueryOption{
		database.WithColumns(reportJobColumns()...),
		database.WithConditions(
			database.WhereCond("report_type", database.Any, params.ReportTypes),
			database.WhereCond("user_role", database.Equal, params.UserRole),
			database.WhereCond("status", database.Equal, string(params.Status)),
		),
		database.WithOrderBy("created_at", "DESC"),
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("report_jobs", queryOpts...))
	jobs, err := r.listByQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find jobs by report types: %w", apperrors.MapDBError(err))
	}
	return jobs, nil
}

// FindDependents returns jobs of the lookup's report type parented by any of
// the listed ids. The fan-out pass uses it to skip duplicates.
func (r *ReportJobRepo) FindDependents(ctx context.Context, lookup model.DependentLookup) ([]*model.Job, error) {
	if len(lookup.ParentJobIDs) == 0 {
		return nil, nil
	}

	queryOpts := []database.ListQueryOption{
		database.WithColumns(reportJobColumns()...),
		database.WithConditions(
			database.WhereCond("parent_job_id", database.Any, lookup.ParentJobIDs),
			database.WhereCond("report_type", database.Equal, lookup.ReportType),
		),
		database.WithOrderBy("created_at", "DESC"),
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions("report_jobs", queryOpts...))
	jobs, err := r.listByQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find dependent jobs: %w", apperrors.MapDBError(err))
	}
	return jobs, nil
}

// Stats counts jobs per lifecycle state in one scan.
func (r *ReportJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var stats model.JobStats
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'QUEUED'),
			COUNT(*) FILTER (WHERE status = 'PROCESSING'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED')
		FROM report_jobs
	`).Scan(&stats.Queued, &stats.Processing, &stats.Completed, &stats.Failed, &stats.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", apperrors.MapDBError(err))
	}
	return &stats, nil
}
