package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/depend"
	"github.com/caseworks/report-engine/internal/domain/model"
)

// maxAncestorDepth bounds the parent-chain walk. Chains deeper than this are
// refused rather than risking an unbounded loop over corrupted lineage data.
const maxAncestorDepth = 25

// Metadata keys attached to dependent request data.
const (
	metaParentJobID      = "parentJobId"
	metaParentReportType = "parentReportType"
	metaParentRole       = "parentRole"
)

// DependencyServiceOptions groups dependencies for DependencyService.
type DependencyServiceOptions struct {
	Repo            core.JobRepository // Required: job repository
	Rules           *depend.RuleSet    // Required: validated dependency rules (may be empty)
	Logger          *slog.Logger       // Optional: structured logger
	EstimateMinutes map[string]int     // Optional: reportType → estimated minutes to completion
	Clock           func() time.Time   // Optional: override for tests
}

// DependencyService chains report jobs: when a parent reaches a terminal
// status, matching rules enqueue follow-up jobs carrying the parent's token
// and scope. All evaluation errors are contained here; they never feed back
// into the parent's outcome.
type DependencyService struct {
	repo            core.JobRepository
	rules           *depend.RuleSet
	logger          *slog.Logger
	estimateMinutes map[string]int
	clock           func() time.Time
}

// NewDependencyService constructs a new DependencyService.
func NewDependencyService(opts DependencyServiceOptions) (*DependencyService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Rules == nil {
		return nil, errors.New("dependency RuleSet is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dependency_service")
	}

	return &DependencyService{
		repo:            opts.Repo,
		rules:           opts.Rules,
		logger:          logger,
		estimateMinutes: opts.EstimateMinutes,
		clock:           clock,
	}, nil
}

// Enabled reports whether any dependency rules are configured.
func (s *DependencyService) Enabled() bool {
	return !s.rules.Empty()
}

// OnParentTerminal evaluates dependency rules for a parent job that reached a
// terminal status. The job is re-read by id because the caller's snapshot may
// be stale. Errors are logged and swallowed.
func (s *DependencyService) OnParentTerminal(ctx context.Context, jobID string) {
	if s.rules.Empty() {
		return
	}

	parent, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		s.logError(ctx, "re-read parent for dependency evaluation", jobID, "", err)
		return
	}

	matches := s.rules.MatchesFor(parent.ReportType, parent.UserRole, parent.Status)
	for _, rule := range matches {
		if err := s.evaluate(ctx, rule, parent); err != nil {
			s.logError(ctx, "dependency rule evaluation", parent.JobID, rule.Key(), err)
		}
	}
}

// evaluate runs one matched rule against the triggering parent.
func (s *DependencyService) evaluate(ctx context.Context, rule depend.Rule, parent *model.Job) error {
	if s.ancestorTypeClash(ctx, rule.DependentReportType, parent) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "refusing dependent matching an ancestor report type",
				"rule", rule.Key(),
				"parent_job_id", parent.JobID,
				"dependent_report_type", rule.DependentReportType,
			)
		}
		return nil
	}

	if !rule.FanIn() {
		_, err := s.enqueueDependent(ctx, rule, parent)
		return err
	}

	// Fan-in completeness and duplicate suppression run under an advisory
	// lock so sibling completions racing here cannot both enqueue.
	return s.repo.WithAdvisoryLock(ctx, fanInLockKey(rule.Key(), parent.UserRole), func(ctx context.Context) error {
		completed, err := s.repo.FindByReportTypesAndRoleAndStatus(ctx, core.DependencyLookupParams{
			ReportTypes: rule.ParentTypes(),
			UserRole:    parent.UserRole,
			Status:      rule.Trigger(),
		})
		if err != nil {
			return fmt.Errorf("fan-in completeness check: %w", err)
		}

		satisfied := make(map[string][]string, len(rule.ParentTypes()))
		for _, job := range completed {
			satisfied[job.ReportType] = append(satisfied[job.ReportType], job.JobID)
		}
		var parentIDs []string
		for _, required := range rule.ParentTypes() {
			ids := satisfied[required]
			if len(ids) == 0 {
				if s.logger != nil {
					s.logger.DebugContext(ctx, "fan-in incomplete",
						"rule", rule.Key(),
						"missing_report_type", required,
						"parent_job_id", parent.JobID,
					)
				}
				return nil
			}
			parentIDs = append(parentIDs, ids...)
		}

		existing, err := s.repo.FindDependents(ctx, model.DependentLookup{
			ParentJobIDs: parentIDs,
			ReportType:   rule.DependentReportType,
		})
		if err != nil {
			return fmt.Errorf("fan-in duplicate check: %w", err)
		}
		if len(existing) > 0 {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "dependent already enqueued",
					"rule", rule.Key(),
					"existing_job_id", existing[0].JobID,
				)
			}
			return nil
		}

		_, err = s.enqueueDependent(ctx, rule, parent)
		return err
	})
}

// enqueueDependent builds and persists the follow-up job. Unspecified rule
// attributes fall back to the triggering parent; the parent's bearer token is
// copied so the dependent runs under the same authority.
func (s *DependencyService) enqueueDependent(ctx context.Context, rule depend.Rule, parent *model.Job) (*model.Job, error) {
	role := ruleRole(rule, parent)

	targetSystem := rule.DependentTargetSystem
	if targetSystem == "" {
		targetSystem = parent.TargetSystem
	}

	format := parent.DataFormat
	if rule.DependentDataFormat != "" {
		format = model.DataFormat(strings.ToUpper(rule.DependentDataFormat))
	}

	priority := parent.Priority
	if rule.DependentPriority != nil {
		priority = *rule.DependentPriority
	}

	chunkSize := parent.ChunkSize
	if rule.DependentChunkSize != nil && *rule.DependentChunkSize > 0 {
		chunkSize = *rule.DependentChunkSize
	}

	// Inherit the parent's date range and filters from its recorded request.
	var parentReq model.CreateReportRequest
	if len(parent.RequestData) > 0 {
		if err := json.Unmarshal(parent.RequestData, &parentReq); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "parent request data undecodable, dependent starts clean",
				"parent_job_id", parent.JobID,
				"error", err,
			)
		}
	}

	metadata := make(map[string]string, len(parentReq.Metadata)+3)
	for k, v := range parentReq.Metadata {
		metadata[k] = v
	}
	metadata[metaParentJobID] = parent.JobID
	metadata[metaParentReportType] = parent.ReportType
	metadata[metaParentRole] = parent.UserRole

	req := model.CreateReportRequest{
		ReportType:   rule.DependentReportType,
		TargetSystem: targetSystem,
		DataFormat:   format,
		ChunkSize:    chunkSize,
		Priority:     priority,
		TenantID:     parent.Tenant(),
		DateRange:    parentReq.DateRange,
		ExtraFilters: parentReq.ExtraFilters,
		Metadata:     metadata,
	}
	requestData, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("serialize dependent request: %w", err)
	}

	now := s.clock().UTC()
	estimated := now.Add(s.dependentEstimate(rule.DependentReportType))
	parentID := parent.JobID

	job := &model.Job{
		JobID:                   model.NewJobID(),
		Status:                  model.JobStatusQueued,
		Priority:                priority,
		JobSource:               parent.JobSource,
		UserRole:                role,
		ReportType:              rule.DependentReportType,
		TargetSystem:            targetSystem,
		DataFormat:              format,
		ChunkSize:               chunkSize,
		RequestData:             requestData,
		BearerToken:             parent.BearerToken,
		ParentJobID:             &parentID,
		EstimatedCompletionTime: &estimated,
		CreatedAt:               now,
	}
	if tenant := parent.Tenant(); tenant != "" {
		job.TenantID = &tenant
	}
	if parent.UserID != nil {
		userID := *parent.UserID
		job.UserID = &userID
	}

	created, err := s.repo.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue dependent job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "dependent job enqueued",
			"rule", rule.Key(),
			"job_id", created.JobID,
			"parent_job_id", parent.JobID,
			"report_type", created.ReportType,
			"role", created.UserRole,
		)
	}
	return created, nil
}

// ancestorTypeClash walks the parent chain and reports whether the proposed
// dependent type already appears among the ancestors. Exhausting the depth
// bound counts as a clash.
func (s *DependencyService) ancestorTypeClash(ctx context.Context, dependentType string, parent *model.Job) bool {
	current := parent
	for depth := 0; depth < maxAncestorDepth; depth++ {
		if current.ReportType == dependentType {
			return true
		}
		if current.ParentJobID == nil {
			return false
		}
		next, err := s.repo.GetByID(ctx, *current.ParentJobID)
		if err != nil {
			s.logError(ctx, "ancestor chain walk", *current.ParentJobID, "", err)
			return false
		}
		current = next
	}
	return true
}

func (s *DependencyService) dependentEstimate(reportType string) time.Duration {
	minutes, ok := s.estimateMinutes[reportType]
	if !ok || minutes <= 0 {
		minutes = DefaultEstimateMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (s *DependencyService) logError(ctx context.Context, op, jobID, rule string, err error) {
	if s.logger == nil {
		return
	}
	attrs := []any{"job_id", jobID, "error", err}
	if rule != "" {
		attrs = append(attrs, "rule", rule)
	}
	s.logger.ErrorContext(ctx, op+" failed", attrs...)
}

// ruleRole resolves the dependent's role, inheriting the parent's when the
// rule leaves it unset.
func ruleRole(rule depend.Rule, parent *model.Job) string {
	if rule.DependentRole != "" {
		return rule.DependentRole
	}
	return parent.UserRole
}

// fanInLockKey derives the advisory lock key guarding one (rule, role)
// fan-in evaluation.
func fanInLockKey(ruleKey, role string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ruleKey))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(role))
	return int64(h.Sum64())
}
