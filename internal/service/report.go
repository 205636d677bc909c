package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// DefaultChunkSize applies when a request omits chunkSize.
const DefaultChunkSize = 1000

// DefaultEstimateMinutes applies when no per-report-type estimate is configured.
const DefaultEstimateMinutes = 10

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Repo             core.JobRepository // Required: job repository
	Logger           *slog.Logger       // Optional: structured logger
	EstimateMinutes  map[string]int     // Optional: reportType → estimated minutes to completion
	DefaultChunkSize int                // Optional: chunk size when the request omits one
	Clock            func() time.Time   // Optional: override for tests
}

// ReportService admits report requests into the job store and serves
// visibility-scoped reads, listing, and cancellation.
type ReportService struct {
	repo             core.JobRepository
	logger           *slog.Logger
	estimateMinutes  map[string]int
	defaultChunkSize int
	clock            func() time.Time
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) (*ReportService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	chunkSize := opts.DefaultChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "report_service")
	}

	return &ReportService{
		repo:             opts.Repo,
		logger:           logger,
		estimateMinutes:  opts.EstimateMinutes,
		defaultChunkSize: chunkSize,
		clock:            clock,
	}, nil
}

// MustNewReportService constructs a new ReportService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReportService(opts ReportServiceOptions) *ReportService {
	svc, err := NewReportService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReportService: %v", err))
	}
	return svc
}

// SubmitParams groups the inputs of Submit to keep param count <= 3.
type SubmitParams struct {
	Request     *model.CreateReportRequest
	Principal   auth.Principal
	BearerToken string
	Source      model.JobSource
}

// Submit validates an admitted request and enqueues a QUEUED job. The bearer
// token travels with the job so the worker can re-derive scope and masking
// rules at claim time. A missing tenant on a tenant-restricted role is not
// rejected here: the worker fails the job at claim, keeping admission cheap.
func (s *ReportService) Submit(ctx context.Context, p SubmitParams) (*model.Job, error) {
	if p.Request == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := p.Request.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid report request")
	}
	if !p.Principal.Role.Known() {
		return nil, apperrors.Validationf("unknown role %q", string(p.Principal.Role))
	}

	tenant := strings.TrimSpace(p.Request.TenantID)
	if tenant == "" {
		tenant = p.Principal.TenantID
	}
	if tenant == model.TenantAll && !p.Principal.Role.SeesAll() {
		return nil, apperrors.ValidationField("tenantId",
			fmt.Sprintf("tenant %q is restricted to administrative roles", model.TenantAll))
	}

	source := p.Source
	if !source.Valid() {
		source = model.JobSourceAPI
	}

	chunkSize := p.Request.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.defaultChunkSize
	}

	requestData, err := json.Marshal(p.Request)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "serialize request data")
	}

	now := s.clock().UTC()
	estimated := now.Add(s.estimateFor(p.Request.ReportType))

	job := &model.Job{
		JobID:                   model.NewJobID(),
		Status:                  model.JobStatusQueued,
		Priority:                p.Request.Priority,
		JobSource:               source,
		UserRole:                string(p.Principal.Role),
		ReportType:              p.Request.ReportType,
		TargetSystem:            p.Request.TargetSystem,
		DataFormat:              p.Request.DataFormat,
		ChunkSize:               chunkSize,
		RequestData:             requestData,
		BearerToken:             p.BearerToken,
		EstimatedCompletionTime: &estimated,
		CreatedAt:               now,
	}
	if tenant != "" {
		job.TenantID = &tenant
	}
	if p.Principal.UserID != "" {
		userID := p.Principal.UserID
		job.UserID = &userID
	}

	created, err := s.repo.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue report job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "report job enqueued",
			"job_id", created.JobID,
			"report_type", created.ReportType,
			"role", created.UserRole,
			"tenant", created.Tenant(),
			"source", created.JobSource,
		)
	}

	return created, nil
}

// Get returns a job when the caller may see it; invisible jobs surface as
// NotFound so existence does not leak across tenants.
func (s *ReportService) Get(ctx context.Context, jobID string, caller auth.Principal) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !CallerCanSee(caller, job) {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	return job, nil
}

// Status projects a visible job into its external status view.
func (s *ReportService) Status(ctx context.Context, jobID string, caller auth.Principal) (*model.JobStatusResponse, error) {
	job, err := s.Get(ctx, jobID, caller)
	if err != nil {
		return nil, err
	}
	resp := model.StatusOf(job)
	return &resp, nil
}

// Cancel moves a visible QUEUED or PROCESSING job to CANCELLED. Terminal jobs
// yield Conflict. The owning worker observes the new status at its next chunk
// boundary and abandons the partial output.
func (s *ReportService) Cancel(ctx context.Context, jobID string, caller auth.Principal) error {
	job, err := s.Get(ctx, jobID, caller)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apperrors.Conflict(fmt.Sprintf("job %s is already %s", jobID, job.Status))
	}

	ok, err := s.repo.UpdateStatus(ctx, core.UpdateStatusParams{
		JobID:  jobID,
		Status: model.JobStatusCancelled,
	})
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if !ok {
		// Lost the race against a terminal transition.
		return apperrors.Conflict(fmt.Sprintf("job %s can no longer be cancelled", jobID))
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "report job cancelled",
			"job_id", jobID,
			"previous_status", job.Status,
		)
	}
	return nil
}

// List returns jobs scoped to the caller with normalized pagination.
func (s *ReportService) List(ctx context.Context, caller auth.Principal, opts model.JobListOptions) ([]*model.Job, error) {
	p := normalizeListPagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	if caller.Role.SeesAll() {
		jobs, err := s.repo.List(ctx, &opts)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		return jobs, nil
	}

	jobs, err := s.repo.ListVisible(ctx, core.VisibleJobsParams{
		Role:     string(caller.Role),
		TenantID: caller.TenantID,
		SeesAll:  caller.Unrestricted(),
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("list visible jobs: %w", err)
	}
	return jobs, nil
}

// Stats returns lifecycle counts across all jobs.
func (s *ReportService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// CallerCanSee applies the visibility rule: administrative roles see
// everything; other callers see jobs of their own role whose tenant matches
// theirs, is the "ALL" sentinel, or when the caller has no tenant restriction.
func CallerCanSee(caller auth.Principal, job *model.Job) bool {
	if caller.Role.SeesAll() {
		return true
	}
	if job.UserRole != string(caller.Role) {
		return false
	}
	if caller.Unrestricted() {
		return true
	}
	tenant := job.Tenant()
	return tenant == caller.TenantID || tenant == model.TenantAll
}

// estimateFor returns the configured completion estimate for a report type.
func (s *ReportService) estimateFor(reportType string) time.Duration {
	minutes, ok := s.estimateMinutes[reportType]
	if !ok || minutes <= 0 {
		minutes = DefaultEstimateMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// listPagination holds normalized pagination parameters.
type listPagination struct {
	Limit  int
	Offset int
}

// normalizeListPagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizeListPagination(limit, offset int) listPagination {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return listPagination{Limit: limit, Offset: offset}
}
