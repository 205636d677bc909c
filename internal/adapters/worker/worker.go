// Package worker executes claimed report jobs: it re-derives the caller's
// scope from the job's bearer token, streams masked timesheet chunks into a
// format writer, and drives the job to its terminal state.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/masking"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/domain/plan"
	"github.com/caseworks/report-engine/internal/domain/report"
	"github.com/caseworks/report-engine/internal/domain/token"
	apperrors "github.com/caseworks/report-engine/internal/errors"
	obserrors "github.com/caseworks/report-engine/internal/observability/errors"
	"github.com/caseworks/report-engine/internal/observability/metrics"
	"github.com/caseworks/report-engine/internal/observability/notify"
	"github.com/caseworks/report-engine/internal/observability/statsd"
	"github.com/caseworks/report-engine/internal/service"
	"github.com/caseworks/report-engine/internal/service/hooks"
)

const (
	// maxEmptyChunks bounds the streaming loop when the fetcher keeps
	// returning nothing while the counted total says rows remain.
	maxEmptyChunks = 3

	defaultRetryAttempts = 3
	defaultRetryBackoff  = time.Second
	defaultOutputDir     = "reports"

	// maxErrorMessageLen keeps persisted error text concise.
	maxErrorMessageLen = 500
)

// Options configures the report worker. Repo, Timesheets, Inspector, and
// Masking are required; everything else has a sensible default or degrades
// to a no-op.
type Options struct {
	Repo       core.JobRepository
	Timesheets core.TimesheetRepository
	Inspector  *token.Inspector
	Masking    *service.MaskingResolver
	Deps       *service.DependencyService
	Hooks      *hooks.Service
	Logger     *slog.Logger
	Metrics    statsd.Sink

	// OutputDir is where result artifacts land; defaults to "reports".
	OutputDir string
	// RetryAttempts bounds fetch attempts per chunk; defaults to 3.
	RetryAttempts int
	// RetryBackoff is the linear backoff base between attempts; defaults to 1s.
	RetryBackoff time.Duration
	Clock        func() time.Time
}

// Runner executes one claimed job at a time. It is safe for concurrent use:
// all per-job state lives on the stack.
type Runner struct {
	repo       core.JobRepository
	timesheets core.TimesheetRepository
	inspector  *token.Inspector
	masking    *service.MaskingResolver
	deps       *service.DependencyService
	hooks      *hooks.Service
	logger     *slog.Logger
	metrics    statsd.Sink

	outputDir     string
	retryAttempts int
	retryBackoff  time.Duration
	clock         func() time.Time
}

// NewRunner constructs a report worker.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Timesheets == nil {
		return nil, errors.New("TimesheetRepository is required")
	}
	if opts.Inspector == nil {
		return nil, errors.New("token Inspector is required")
	}
	if opts.Masking == nil {
		return nil, errors.New("MaskingResolver is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "report_worker")

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Runner{
		repo:          opts.Repo,
		timesheets:    opts.Timesheets,
		inspector:     opts.Inspector,
		masking:       opts.Masking,
		deps:          opts.Deps,
		hooks:         opts.Hooks,
		logger:        logger,
		metrics:       opts.Metrics,
		outputDir:     outputDir,
		retryAttempts: attempts,
		retryBackoff:  backoff,
		clock:         clock,
	}, nil
}

// outcome captures a successful run for notification and logging.
type outcome struct {
	Path      string
	Processed int64
	Total     int64
}

// Execute runs a claimed job to a terminal state. It never returns an error:
// failures are recorded on the job, cancellations leave the externally set
// status untouched, and the dispatcher moves on either way.
func (r *Runner) Execute(ctx context.Context, job *model.Job) {
	start := r.clock()
	result, err := r.run(ctx, job)
	duration := r.clock().Sub(start)

	switch {
	case err == nil:
		r.emit(job, "completed", metrics.ResultSuccess, duration, nil)
		r.logger.InfoContext(ctx, "report job completed",
			"job_id", job.JobID,
			"report_type", job.ReportType,
			"records", result.Processed,
			"path", result.Path,
			"duration", duration,
		)
		r.notifyDelivery(ctx, job, result)
		r.fanOutDependents(ctx, job.JobID)

	case apperrors.IsJobCancelled(err):
		r.emit(job, "cancelled", metrics.ResultCancelled, duration, nil)
		r.logger.InfoContext(ctx, "report job cancelled mid-stream",
			"job_id", job.JobID,
			"report_type", job.ReportType,
		)

	default:
		msg := conciseError(err)
		ok, updateErr := r.repo.UpdateStatus(ctx, core.UpdateStatusParams{
			JobID:        job.JobID,
			Status:       model.JobStatusFailed,
			ErrorMessage: &msg,
		})
		if updateErr != nil {
			r.logger.ErrorContext(ctx, "record job failure", "job_id", job.JobID, "error", updateErr)
		} else if !ok {
			r.logger.WarnContext(ctx, "job left PROCESSING before failure could be recorded", "job_id", job.JobID)
		}

		r.emit(job, "failed", metrics.ResultError, duration, err)
		r.logger.ErrorContext(ctx, "report job failed",
			"job_id", job.JobID,
			"report_type", job.ReportType,
			"error", err,
		)
		r.notifyFailure(ctx, job, msg, err)
		r.fanOutDependents(ctx, job.JobID)
	}
}

// run is the streaming pipeline. On success the job is already COMPLETED via
// setResult; every error path has removed any partial output file.
func (r *Runner) run(ctx context.Context, job *model.Job) (*outcome, error) {
	scope, err := r.prepare(ctx, job)
	if err != nil {
		return nil, err
	}

	total, err := r.sizeTotal(ctx, job, scope.plan)
	if err != nil {
		return nil, err
	}
	if err := r.repo.SetProgress(ctx, core.SetProgressParams{
		JobID:     job.JobID,
		Processed: 0,
		Total:     &total,
		Progress:  0,
	}); err != nil {
		return nil, fmt.Errorf("persist total count: %w", err)
	}

	path := report.ArtifactPath(r.outputDir, job, r.clock().UTC())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.WriteFailure(fmt.Errorf("create output directory: %w", err))
	}
	out, err := os.Create(path)
	if err != nil {
		return nil, apperrors.WriteFailure(fmt.Errorf("create output file: %w", err))
	}
	discard := func() {
		_ = out.Close()
		_ = os.Remove(path)
	}

	writer, err := report.NewWriter(job.DataFormat, out)
	if err != nil {
		discard()
		return nil, err
	}
	if err := writer.Begin(report.Metadata{
		ReportID:     job.JobID,
		ReportType:   job.ReportType,
		UserRole:     job.UserRole,
		TargetSystem: job.TargetSystem,
		GeneratedAt:  r.clock().UTC(),
		DataFormat:   job.DataFormat,
	}); err != nil {
		discard()
		return nil, apperrors.WriteFailure(err)
	}

	processed, err := r.stream(ctx, job, scope, writer, total)
	if err != nil {
		discard()
		return nil, err
	}

	if err := writer.End(); err != nil {
		discard()
		return nil, apperrors.WriteFailure(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return nil, apperrors.WriteFailure(err)
	}

	ok, err := r.repo.SetResult(ctx, core.SetResultParams{JobID: job.JobID, ResultPath: path})
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("set result: %w", err)
	}
	if !ok {
		// Already finalized; second call is a no-op per the store contract.
		r.logger.DebugContext(ctx, "result already set", "job_id", job.JobID)
	}

	return &outcome{Path: path, Processed: processed, Total: total}, nil
}

// jobScope is everything the streaming loop needs besides the job row.
type jobScope struct {
	plan  plan.QueryPlan
	rules model.RuleSet
}

// prepare decodes the job's token, rebuilds the query plan, and resolves the
// masking rule set. Any failure here fails the job before a file is created.
func (r *Runner) prepare(ctx context.Context, job *model.Job) (*jobScope, error) {
	claims, err := r.inspector.Inspect(job.BearerToken)
	if err != nil {
		return nil, err
	}

	var req model.CreateReportRequest
	if len(job.RequestData) > 0 {
		if err := json.Unmarshal(job.RequestData, &req); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode request data")
		}
	}

	userID := claims.UserID
	if job.UserID != nil && *job.UserID != "" {
		userID = *job.UserID
	}

	queryPlan, err := plan.Build(plan.BuildParams{
		Role:         auth.Role(job.UserRole),
		TenantID:     job.Tenant(),
		UserID:       userID,
		DateRange:    req.DateRange,
		ExtraFilters: req.ExtraFilters,
	})
	if err != nil {
		return nil, err
	}

	rules, err := r.masking.Resolve(ctx, service.ResolveParams{
		Role:       job.UserRole,
		ReportType: job.ReportType,
		Claims:     claims,
	})
	if err != nil {
		return nil, err
	}

	return &jobScope{plan: queryPlan, rules: rules}, nil
}

// sizeTotal probes the plan with a single-row fetch and runs the count query.
// The probe exercises the full predicate path so count errors and fetch errors
// surface identically before any file exists.
func (r *Runner) sizeTotal(ctx context.Context, job *model.Job, queryPlan plan.QueryPlan) (int64, error) {
	if _, err := r.fetchChunk(ctx, job, queryPlan, 0, 1); err != nil {
		return 0, err
	}
	total, err := r.timesheets.Count(ctx, queryPlan)
	if err != nil {
		return 0, apperrors.TransientFetch(fmt.Errorf("count records: %w", err))
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}

// stream writes masked records chunk by chunk until the stream ends. The
// caller owns the writer and the file; this loop owns progress persistence
// and the cancellation checks.
func (r *Runner) stream(
	ctx context.Context,
	job *model.Job,
	scope *jobScope,
	writer report.Writer,
	total int64,
) (int64, error) {
	chunkSize := job.ChunkSize
	if chunkSize <= 0 {
		chunkSize = service.DefaultChunkSize
	}

	var (
		processed   int64
		offset      int64
		emptyChunks int
	)

	for processed < total {
		if err := r.checkCancelled(ctx, job.JobID); err != nil {
			return processed, err
		}

		rows, err := r.fetchChunk(ctx, job, scope.plan, offset, chunkSize)
		if err != nil {
			return processed, err
		}

		if len(rows) == 0 {
			emptyChunks++
			if emptyChunks >= maxEmptyChunks {
				r.logger.WarnContext(ctx, "empty chunk bound reached, ending stream early",
					"job_id", job.JobID,
					"processed", processed,
					"total", total,
				)
				break
			}
			continue
		}
		emptyChunks = 0

		maskedAt := r.clock().UTC()
		for _, row := range rows {
			fields := masking.Apply(row, scope.rules)
			rec := model.MaskedRecord{
				TimesheetID: fields.TimesheetID(),
				UserRole:    job.UserRole,
				ReportType:  job.ReportType,
				MaskedAt:    maskedAt,
				Fields:      fields,
			}
			if err := writer.WriteRecord(rec); err != nil {
				return processed, apperrors.WriteFailure(err)
			}
		}

		processed += int64(len(rows))
		offset += int64(len(rows))

		if err := r.repo.SetProgress(ctx, core.SetProgressParams{
			JobID:     job.JobID,
			Processed: processed,
			Progress:  progressOf(processed, total),
		}); err != nil {
			// Progress is advisory; the stream continues.
			r.logger.WarnContext(ctx, "persist progress", "job_id", job.JobID, "error", err)
		}

		if len(rows) < chunkSize {
			break
		}
	}

	return processed, nil
}

// checkCancelled re-reads the job before each chunk so an external CANCELLED
// status is honored at the next chunk boundary.
func (r *Runner) checkCancelled(ctx context.Context, jobID string) error {
	current, err := r.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("re-read job status: %w", err)
	}
	if current.Status == model.JobStatusCancelled {
		return apperrors.JobCancelled(jobID)
	}
	return nil
}

// fetchChunk fetches one chunk with a bounded linear-backoff retry budget.
func (r *Runner) fetchChunk(
	ctx context.Context,
	job *model.Job,
	queryPlan plan.QueryPlan,
	offset int64,
	limit int,
) ([]model.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		rows, err := r.timesheets.Fetch(ctx, core.FetchParams{
			Plan:   queryPlan,
			Offset: offset,
			Limit:  limit,
		})
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if attempt < r.retryAttempts {
			metrics.EmitChunkRetry(r.metrics, job.ReportType, attempt)
			r.logger.WarnContext(ctx, "chunk fetch failed, retrying",
				"job_id", job.JobID,
				"offset", offset,
				"attempt", attempt,
				"error", err,
			)
			delay := time.Duration(attempt) * r.retryBackoff
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, apperrors.TransientFetch(fmt.Errorf("fetch chunk at offset %d: %w", offset, lastErr))
}

func (r *Runner) notifyDelivery(ctx context.Context, job *model.Job, result *outcome) {
	if r.hooks == nil {
		return
	}
	payload := notify.DeliveryPayload{
		JobID:        job.JobID,
		ReportType:   job.ReportType,
		UserRole:     job.UserRole,
		TenantID:     job.Tenant(),
		TargetSystem: job.TargetSystem,
		ResultPath:   result.Path,
		RecordCount:  result.Processed,
		JobSource:    string(job.JobSource),
		CompletedAt:  r.clock().UTC(),
	}
	if job.ParentJobID != nil {
		payload.Metadata = map[string]string{"parentJobId": *job.ParentJobID}
	}
	r.hooks.NotifyDelivery(ctx, payload)
}

func (r *Runner) notifyFailure(ctx context.Context, job *model.Job, msg string, err error) {
	if r.hooks == nil {
		return
	}
	r.hooks.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      job.JobID,
		ReportType: job.ReportType,
		UserRole:   job.UserRole,
		TenantID:   job.Tenant(),
		Error:      msg,
		ErrorClass: obserrors.Classify(err),
		OccurredAt: r.clock().UTC(),
	})
}

func (r *Runner) fanOutDependents(ctx context.Context, jobID string) {
	if r.deps == nil {
		return
	}
	r.deps.OnParentTerminal(ctx, jobID)
}

func (r *Runner) emit(job *model.Job, transition, result string, duration time.Duration, err error) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		ReportType: job.ReportType,
		UserRole:   job.UserRole,
		Transition: transition,
		Result:     result,
		Duration:   duration,
		Err:        err,
	})
}

// progressOf computes floor(100 * processed / max(total, 1)).
func progressOf(processed, total int64) int {
	if total < 1 {
		total = 1
	}
	return int(100 * processed / total)
}

// conciseError renders a bounded, user-safe error message for persistence.
// AppError messages are already safe; anything else is truncated raw text.
func conciseError(err error) string {
	var appErr *apperrors.AppError
	msg := err.Error()
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
