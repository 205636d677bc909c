package core

import (
	"context"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/domain/plan"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for report job data operations.
type JobRepository interface {
	// Enqueue persists a prepared job with status QUEUED and returns the
	// stored row.
	Enqueue(ctx context.Context, job *model.Job) (*model.Job, error)

	GetByID(ctx context.Context, jobID string) (*model.Job, error)

	// Claim attempts the QUEUED to PROCESSING compare-and-set and stamps
	// startedAt. Returns (nil, nil) when another worker won the race.
	Claim(ctx context.Context, jobID string) (*model.Job, error)

	// TopQueued returns up to limit QUEUED jobs ordered by priority DESC,
	// createdAt ASC.
	TopQueued(ctx context.Context, limit int) ([]*model.Job, error)

	// QueuedByPriority returns all QUEUED jobs in dispatch order.
	QueuedByPriority(ctx context.Context) ([]*model.Job, error)

	// UpdateStatus applies a transition-checked status change. Returns false
	// when the job's current status does not permit the transition.
	UpdateStatus(ctx context.Context, params UpdateStatusParams) (bool, error)

	// SetProgress persists per-chunk progress for a PROCESSING job.
	SetProgress(ctx context.Context, params SetProgressParams) error

	// SetResult atomically completes a job: status COMPLETED, progress 100,
	// processedRecords aligned to totalRecords, completedAt stamped. Returns
	// false when the job is no longer PROCESSING (idempotent second call).
	SetResult(ctx context.Context, params SetResultParams) (bool, error)

	SetSource(ctx context.Context, jobID string, source model.JobSource) error

	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)
	ListByUserRole(ctx context.Context, role string, limit int) ([]*model.Job, error)
	List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error)

	// ListVisible applies the caller's visibility filter in SQL.
	ListVisible(ctx context.Context, params VisibleJobsParams) ([]*model.Job, error)

	// FindByReportTypesAndRoleAndStatus backs fan-in dependency checks.
	FindByReportTypesAndRoleAndStatus(ctx context.Context, params DependencyLookupParams) ([]*model.Job, error)

	// FindDependents returns jobs of the given report type whose parentJobId
	// is one of the listed ids.
	FindDependents(ctx context.Context, lookup model.DependentLookup) ([]*model.Job, error)

	Stats(ctx context.Context) (*model.JobStats, error)

	// DeleteTerminalBefore removes terminal jobs older than maxAge in batches.
	// Returns the purged rows so callers can unlink their result files.
	DeleteTerminalBefore(ctx context.Context, params DeleteTerminalParams) ([]DeletedJob, error)

	// WithAdvisoryLock runs fn while holding a session advisory lock on key.
	WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) error
}

// UpdateStatusParams groups parameters for UpdateStatus to keep param count ≤3.
type UpdateStatusParams struct {
	JobID        string
	Status       model.JobStatus
	ErrorMessage *string
}

// SetProgressParams groups parameters for SetProgress.
type SetProgressParams struct {
	JobID     string
	Processed int64
	Total     *int64
	Progress  int
}

// SetResultParams groups parameters for SetResult.
type SetResultParams struct {
	JobID      string
	ResultPath string
}

// VisibleJobsParams groups the caller identity with list options for
// ListVisible.
type VisibleJobsParams struct {
	Role     string
	TenantID string
	SeesAll  bool
	Options  model.JobListOptions
}

// DependencyLookupParams groups parameters for fan-in completeness checks.
type DependencyLookupParams struct {
	ReportTypes []string
	UserRole    string
	Status      model.JobStatus
}

// DeleteTerminalParams groups parameters for DeleteTerminalBefore.
type DeleteTerminalParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// DeletedJob identifies a purged row and the artifact it may have left on disk.
type DeletedJob struct {
	JobID      string
	ResultPath string
}

// TimesheetRepository defines the interface for extraction queries over the
// timesheet rows. Implementations translate the query plan into SQL.
type TimesheetRepository interface {
	// Fetch returns one page of rows matching the plan, ordered by
	// (serviceDate, timesheetId).
	Fetch(ctx context.Context, params FetchParams) ([]model.Record, error)

	// Count returns the total row count for the plan's predicate.
	Count(ctx context.Context, p plan.QueryPlan) (int64, error)
}

// FetchParams groups parameters for TimesheetRepository.Fetch.
type FetchParams struct {
	Plan   plan.QueryPlan
	Offset int64
	Limit  int
}

// RuleSource is the identity-provider fallback for masking rules when the
// bearer token carries none. Entries use the protocol-mapper string shape.
type RuleSource interface {
	FetchMaskingRules(ctx context.Context, role string) ([]string, error)
}

// RuleWriter is implemented by rule sources that can persist rule updates
// back to the identity provider.
type RuleWriter interface {
	UpdateMaskingRules(ctx context.Context, role string, entries []string) error
}

// TokenMinter obtains service bearer tokens for scheduled jobs.
type TokenMinter interface {
	Mint(ctx context.Context, username string) (string, error)
}
