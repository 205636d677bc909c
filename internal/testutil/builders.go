// Package testutil provides testing utilities and helpers for the report
// engine's job pipeline.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// ReportRequestBuilder provides a fluent interface for building
// CreateReportRequest objects for testing.
type ReportRequestBuilder struct {
	req *model.CreateReportRequest
}

// NewReportRequest creates a new ReportRequestBuilder with sensible defaults.
func NewReportRequest() *ReportRequestBuilder {
	return &ReportRequestBuilder{
		req: &model.CreateReportRequest{
			ReportType:   model.ReportTypeDailySummary,
			TargetSystem: "CMIPS",
			DataFormat:   model.FormatJSON,
			ChunkSize:    1000,
			Priority:     50,
		},
	}
}

// WithReportType sets the report type.
func (b *ReportRequestBuilder) WithReportType(reportType string) *ReportRequestBuilder {
	b.req.ReportType = reportType
	return b
}

// WithTargetSystem sets the downstream consumer tag.
func (b *ReportRequestBuilder) WithTargetSystem(target string) *ReportRequestBuilder {
	b.req.TargetSystem = target
	return b
}

// WithDataFormat sets the output format.
func (b *ReportRequestBuilder) WithDataFormat(format model.DataFormat) *ReportRequestBuilder {
	b.req.DataFormat = format
	return b
}

// WithChunkSize sets the streaming chunk size.
func (b *ReportRequestBuilder) WithChunkSize(size int) *ReportRequestBuilder {
	b.req.ChunkSize = size
	return b
}

// WithPriority sets the queue priority.
func (b *ReportRequestBuilder) WithPriority(priority int) *ReportRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithTenant sets an explicit tenant id on the request.
func (b *ReportRequestBuilder) WithTenant(tenantID string) *ReportRequestBuilder {
	b.req.TenantID = tenantID
	return b
}

// WithDateRange sets the extraction window.
func (b *ReportRequestBuilder) WithDateRange(start, end time.Time) *ReportRequestBuilder {
	b.req.DateRange = &model.DateRange{Start: start, End: end}
	return b
}

// WithExtraFilter adds one allow-listed filter.
func (b *ReportRequestBuilder) WithExtraFilter(key, value string) *ReportRequestBuilder {
	if b.req.ExtraFilters == nil {
		b.req.ExtraFilters = map[string]string{}
	}
	b.req.ExtraFilters[key] = value
	return b
}

// WithMetadata adds one metadata entry.
func (b *ReportRequestBuilder) WithMetadata(key, value string) *ReportRequestBuilder {
	if b.req.Metadata == nil {
		b.req.Metadata = map[string]string{}
	}
	b.req.Metadata[key] = value
	return b
}

// Build returns the constructed CreateReportRequest.
func (b *ReportRequestBuilder) Build() *model.CreateReportRequest {
	return b.req
}

// JobBuilder provides a fluent interface for building Job rows for seeding
// the in-memory store or asserting repository behavior.
type JobBuilder struct {
	job *model.Job
}

// NewJob creates a JobBuilder with a queued CASE_WORKER daily summary.
func NewJob(jobID string) *JobBuilder {
	return &JobBuilder{
		job: &model.Job{
			JobID:        jobID,
			Status:       model.JobStatusQueued,
			Priority:     50,
			JobSource:    model.JobSourceAPI,
			UserRole:     "CASE_WORKER",
			ReportType:   model.ReportTypeDailySummary,
			TargetSystem: "CMIPS",
			DataFormat:   model.FormatJSON,
			ChunkSize:    1000,
			CreatedAt:    TestTime(),
			UpdatedAt:    TestTime(),
		},
	}
}

// WithStatus sets the lifecycle status.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	return b
}

// WithRole sets the requesting role.
func (b *JobBuilder) WithRole(role string) *JobBuilder {
	b.job.UserRole = role
	return b
}

// WithReportType sets the report type.
func (b *JobBuilder) WithReportType(reportType string) *JobBuilder {
	b.job.ReportType = reportType
	return b
}

// WithFormat sets the output format.
func (b *JobBuilder) WithFormat(format model.DataFormat) *JobBuilder {
	b.job.DataFormat = format
	return b
}

// WithChunkSize sets the streaming chunk size.
func (b *JobBuilder) WithChunkSize(size int) *JobBuilder {
	b.job.ChunkSize = size
	return b
}

// WithPriority sets the queue priority.
func (b *JobBuilder) WithPriority(priority int) *JobBuilder {
	b.job.Priority = priority
	return b
}

// WithTenant sets the tenant id.
func (b *JobBuilder) WithTenant(tenantID string) *JobBuilder {
	b.job.TenantID = &tenantID
	return b
}

// WithUser sets the requesting user id.
func (b *JobBuilder) WithUser(userID string) *JobBuilder {
	b.job.UserID = &userID
	return b
}

// WithSource sets the job origin.
func (b *JobBuilder) WithSource(source model.JobSource) *JobBuilder {
	b.job.JobSource = source
	return b
}

// WithParent links the job to a parent job id.
func (b *JobBuilder) WithParent(parentJobID string) *JobBuilder {
	b.job.ParentJobID = &parentJobID
	return b
}

// WithBearerToken sets the opaque token payload.
func (b *JobBuilder) WithBearerToken(token string) *JobBuilder {
	b.job.BearerToken = token
	return b
}

// WithRequestData marshals the request into the job's request_data payload.
func (b *JobBuilder) WithRequestData(req *model.CreateReportRequest) *JobBuilder {
	data, err := json.Marshal(req)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal request data: %v", err))
	}
	b.job.RequestData = data
	return b
}

// WithCreatedAt sets the enqueue time.
func (b *JobBuilder) WithCreatedAt(t time.Time) *JobBuilder {
	b.job.CreatedAt = t
	b.job.UpdatedAt = t
	return b
}

// WithCompletedAt marks the completion time.
func (b *JobBuilder) WithCompletedAt(t time.Time) *JobBuilder {
	b.job.CompletedAt = &t
	return b
}

// WithResultPath records where the report artifact was written.
func (b *JobBuilder) WithResultPath(path string) *JobBuilder {
	b.job.ResultPath = &path
	return b
}

// Build returns the constructed Job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}

// BearerToken assembles a three-segment token whose payload is the given
// claim map. The signature segment is a placeholder: inspection-mode token
// handling never verifies it.
func BearerToken(claims map[string]any) string {
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal token claims: %v", err))
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".sig"
}

// RoleToken builds a bearer token for the given role and tenant. An empty
// tenant omits the county claim entirely.
func RoleToken(clientID, role, tenantID string) string {
	claims := map[string]any{
		"sub":                "user-" + role,
		"preferred_username": "test-" + role,
		"resource_access": map[string]any{
			clientID: map[string]any{"roles": []any{role}},
		},
	}
	if tenantID != "" {
		claims["countyId"] = tenantID
	}
	return BearerToken(claims)
}
