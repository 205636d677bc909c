package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// MemJobStore is an in-memory core.JobRepository. Adapter and service tests
// use it in place of the Postgres repository; it applies the same transition
// rules and visibility predicates and records every progress and status write
// so tests can assert on the persisted sequence.
type MemJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	order []string

	clock func() time.Time

	progressLog []core.SetProgressParams
	statusLog   []core.UpdateStatusParams

	advisoryMu    sync.Mutex
	advisoryLocks map[int64]*sync.Mutex
}

var _ core.JobRepository = (*MemJobStore)(nil)

// NewMemJobStore creates an empty store using the wall clock.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{
		jobs:  make(map[string]*model.Job),
		clock: time.Now,
	}
}

// WithClock replaces the store's clock and returns the store.
func (s *MemJobStore) WithClock(clock func() time.Time) *MemJobStore {
	s.clock = clock
	return s
}

// Seed inserts jobs directly, bypassing Enqueue defaults. Panics on a
// duplicate id so a broken fixture fails loudly.
func (s *MemJobStore) Seed(jobs ...*model.Job) *MemJobStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if _, exists := s.jobs[job.JobID]; exists {
			panic(fmt.Sprintf("testutil: duplicate seed job %s", job.JobID))
		}
		clone := cloneJob(job)
		s.jobs[clone.JobID] = clone
		s.order = append(s.order, clone.JobID)
	}
	return s
}

// ProgressLog returns every SetProgress call in order.
func (s *MemJobStore) ProgressLog() []core.SetProgressParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SetProgressParams, len(s.progressLog))
	copy(out, s.progressLog)
	return out
}

// StatusLog returns every UpdateStatus call in order, including rejected ones.
func (s *MemJobStore) StatusLog() []core.UpdateStatusParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UpdateStatusParams, len(s.statusLog))
	copy(out, s.statusLog)
	return out
}

// Enqueue stores a clone of the job, stamping defaults the way the SQL
// insert would.
func (s *MemJobStore) Enqueue(_ context.Context, job *model.Job) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.JobID == "" {
		return nil, apperrors.Validation("job id is required")
	}
	if _, exists := s.jobs[job.JobID]; exists {
		return nil, apperrors.Conflict(fmt.Sprintf("job %s already exists", job.JobID))
	}

	clone := cloneJob(job)
	now := s.clock()
	if clone.Status == "" {
		clone.Status = model.JobStatusQueued
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now

	s.jobs[clone.JobID] = clone
	s.order = append(s.order, clone.JobID)
	return cloneJob(clone), nil
}

func (s *MemJobStore) GetByID(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	return cloneJob(job), nil
}

// Claim performs the QUEUED to PROCESSING compare-and-set. A lost race, a
// missing job, or a non-queued status all return (nil, nil).
func (s *MemJobStore) Claim(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != model.JobStatusQueued {
		return nil, nil
	}
	now := s.clock()
	job.Status = model.JobStatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	return cloneJob(job), nil
}

func (s *MemJobStore) TopQueued(_ context.Context, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.queuedLocked()
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (s *MemJobStore) QueuedByPriority(_ context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedLocked(), nil
}

// queuedLocked returns clones of queued jobs ordered by priority descending,
// then enqueue time ascending.
func (s *MemJobStore) queuedLocked() []*model.Job {
	var queued []*model.Job
	for _, id := range s.order {
		if job := s.jobs[id]; job.Status == model.JobStatusQueued {
			queued = append(queued, cloneJob(job))
		}
	}
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].Priority != queued[j].Priority {
			return queued[i].Priority > queued[j].Priority
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	return queued
}

func (s *MemJobStore) UpdateStatus(_ context.Context, params core.UpdateStatusParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusLog = append(s.statusLog, params)

	job, ok := s.jobs[params.JobID]
	if !ok {
		return false, nil
	}
	if !model.CanTransition(job.Status, params.Status) {
		return false, nil
	}

	now := s.clock()
	job.Status = params.Status
	job.ErrorMessage = cloneString(params.ErrorMessage)
	if params.Status == model.JobStatusProcessing {
		job.StartedAt = &now
	}
	if params.Status.Terminal() {
		job.CompletedAt = &now
	}
	job.UpdatedAt = now
	return true, nil
}

func (s *MemJobStore) SetProgress(_ context.Context, params core.SetProgressParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progressLog = append(s.progressLog, params)

	job, ok := s.jobs[params.JobID]
	if !ok {
		return apperrors.NotFoundf("job %s not found", params.JobID)
	}
	job.ProcessedRecords = params.Processed
	if params.Total != nil {
		total := *params.Total
		job.TotalRecords = &total
	}
	job.Progress = params.Progress
	job.UpdatedAt = s.clock()
	return nil
}

func (s *MemJobStore) SetResult(_ context.Context, params core.SetResultParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[params.JobID]
	if !ok {
		return false, nil
	}
	if job.Status != model.JobStatusProcessing {
		return false, nil
	}

	now := s.clock()
	path := params.ResultPath
	job.ResultPath = &path
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	if job.TotalRecords != nil {
		job.ProcessedRecords = *job.TotalRecords
	}
	job.CompletedAt = &now
	job.UpdatedAt = now
	return true, nil
}

func (s *MemJobStore) SetSource(_ context.Context, jobID string, source model.JobSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return apperrors.NotFoundf("job %s not found", jobID)
	}
	job.JobSource = source
	job.UpdatedAt = s.clock()
	return nil
}

func (s *MemJobStore) ListByStatus(_ context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	return s.filtered(func(j *model.Job) bool { return j.Status == status }, limit, 0), nil
}

func (s *MemJobStore) ListByUserRole(_ context.Context, role string, limit int) ([]*model.Job, error) {
	return s.filtered(func(j *model.Job) bool { return j.UserRole == role }, limit, 0), nil
}

func (s *MemJobStore) List(_ context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}
	return s.filtered(matchOptions(opts), opts.Limit, opts.Offset), nil
}

func (s *MemJobStore) ListVisible(_ context.Context, params core.VisibleJobsParams) ([]*model.Job, error) {
	match := matchOptions(&params.Options)
	visible := func(j *model.Job) bool {
		if j.UserRole != params.Role {
			return false
		}
		if !params.SeesAll {
			tenant := j.Tenant()
			if tenant != params.TenantID && tenant != model.TenantAll {
				return false
			}
		}
		return match(j)
	}
	return s.filtered(visible, params.Options.Limit, params.Options.Offset), nil
}

func (s *MemJobStore) FindByReportTypesAndRoleAndStatus(
	_ context.Context,
	params core.DependencyLookupParams,
) ([]*model.Job, error) {
	types := make(map[string]bool, len(params.ReportTypes))
	for _, t := range params.ReportTypes {
		types[t] = true
	}
	return s.filtered(func(j *model.Job) bool {
		return types[j.ReportType] && j.UserRole == params.UserRole && j.Status == params.Status
	}, 0, 0), nil
}

func (s *MemJobStore) FindDependents(_ context.Context, lookup model.DependentLookup) ([]*model.Job, error) {
	parents := make(map[string]bool, len(lookup.ParentJobIDs))
	for _, id := range lookup.ParentJobIDs {
		parents[id] = true
	}
	return s.filtered(func(j *model.Job) bool {
		return j.ReportType == lookup.ReportType && j.ParentJobID != nil && parents[*j.ParentJobID]
	}, 0, 0), nil
}

func (s *MemJobStore) Stats(_ context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.JobStats{}
	for _, job := range s.jobs {
		switch job.Status {
		case model.JobStatusQueued:
			stats.Queued++
		case model.JobStatusProcessing:
			stats.Processing++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		case model.JobStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (s *MemJobStore) DeleteTerminalBefore(_ context.Context, params core.DeleteTerminalParams) ([]core.DeletedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-params.MaxAge)
	var deleted []core.DeletedJob
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		expired := job.Status.Terminal() &&
			job.CompletedAt != nil &&
			job.CompletedAt.Before(cutoff) &&
			(params.BatchSize <= 0 || len(deleted) < params.BatchSize)
		if expired {
			purged := core.DeletedJob{JobID: job.JobID}
			if job.ResultPath != nil {
				purged.ResultPath = *job.ResultPath
			}
			deleted = append(deleted, purged)
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return deleted, nil
}

// WithAdvisoryLock serializes callbacks per key within this store.
func (s *MemJobStore) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) error {
	lock := s.advisoryLock(key)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *MemJobStore) advisoryLock(key int64) *sync.Mutex {
	s.advisoryMu.Lock()
	defer s.advisoryMu.Unlock()
	if s.advisoryLocks == nil {
		s.advisoryLocks = map[int64]*sync.Mutex{}
	}
	lock, ok := s.advisoryLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.advisoryLocks[key] = lock
	}
	return lock
}

// filtered returns clones of matching jobs, newest first, with pagination.
func (s *MemJobStore) filtered(match func(*model.Job) bool, limit, offset int) []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Job
	for _, id := range s.order {
		if job := s.jobs[id]; match(job) {
			out = append(out, cloneJob(job))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(out) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchOptions(opts *model.JobListOptions) func(*model.Job) bool {
	return func(j *model.Job) bool {
		if opts.Status != nil && j.Status != *opts.Status {
			return false
		}
		if opts.UserRole != nil && j.UserRole != *opts.UserRole {
			return false
		}
		if opts.ReportType != nil && j.ReportType != *opts.ReportType {
			return false
		}
		if opts.JobSource != nil && j.JobSource != *opts.JobSource {
			return false
		}
		return true
	}
}

func cloneJob(job *model.Job) *model.Job {
	clone := *job
	clone.TenantID = cloneString(job.TenantID)
	clone.UserID = cloneString(job.UserID)
	clone.ResultPath = cloneString(job.ResultPath)
	clone.ErrorMessage = cloneString(job.ErrorMessage)
	clone.ParentJobID = cloneString(job.ParentJobID)
	clone.TotalRecords = cloneInt64(job.TotalRecords)
	clone.EstimatedCompletionTime = cloneTime(job.EstimatedCompletionTime)
	clone.StartedAt = cloneTime(job.StartedAt)
	clone.CompletedAt = cloneTime(job.CompletedAt)
	if job.RequestData != nil {
		clone.RequestData = append([]byte(nil), job.RequestData...)
	}
	return &clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
