// Package model defines the core data types and structures used throughout the report engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a report job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

// JobSource records how a job entered the queue.
type JobSource string

// DataFormat is the requested output format of a report.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type DataFormat string

const (
	// JobStatusQueued indicates a job is waiting to be claimed.
	JobStatusQueued JobStatus = "QUEUED"
	// JobStatusProcessing indicates a worker owns the job.
	JobStatusProcessing JobStatus = "PROCESSING"
	// JobStatusCompleted indicates the report was written successfully.
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed indicates the job terminated with an error.
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCancelled indicates an external caller cancelled the job.
	JobStatusCancelled JobStatus = "CANCELLED"

	// JobSourceManual marks jobs submitted by an interactive user.
	JobSourceManual JobSource = "MANUAL"
	// JobSourceScheduled marks jobs emitted by the cron fan-out.
	JobSourceScheduled JobSource = "SCHEDULED"
	// JobSourceAPI marks jobs admitted through the HTTP API.
	JobSourceAPI JobSource = "API"

	// FormatJSON streams an object literal with a data array.
	FormatJSON DataFormat = "JSON"
	// FormatCSV streams a header row plus one line per record.
	FormatCSV DataFormat = "CSV"
	// FormatXML streams a report document with record elements.
	FormatXML DataFormat = "XML"
	// FormatPDF collects all records and renders once.
	FormatPDF DataFormat = "PDF"
)

// Well-known report types. The set is open: profiles and estimates may
// introduce additional types through configuration.
const (
	ReportTypeDailySummary    = "DAILY_SUMMARY"
	ReportTypeCountyDaily     = "COUNTY_DAILY"
	ReportTypeWeeklySummary   = "WEEKLY_SUMMARY"
	ReportTypeMonthlyActivity = "MONTHLY_ACTIVITY"
	ReportTypeQuarterlyReview = "QUARTERLY_REVIEW"
	ReportTypeYearlyAudit     = "YEARLY_AUDIT"
	ReportTypeCompositeRollup = "COMPOSITE_ROLLUP"
)

// TenantAll is the sentinel tenant id making a job visible to every caller of
// the matching role. Only ADMIN and SYSTEM_SCHEDULER may enqueue with it.
const TenantAll = "ALL"

// ErrClaimLost is returned when a claim attempt loses the compare-and-set race.
var ErrClaimLost = errors.New("job claim lost")

// Valid returns true if the JobStatus is one of the five lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal returns true for statuses with no outgoing transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow
// env and query-string parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// CanTransition reports whether from → to is an allowed status transition.
// Allowed pairs: QUEUED→PROCESSING, QUEUED→CANCELLED, PROCESSING→COMPLETED,
// PROCESSING→FAILED, PROCESSING→CANCELLED.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing || to == JobStatusCancelled
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	default:
		return false
	}
}

// Valid returns true if the JobSource is valid.
func (s JobSource) Valid() bool {
	return s == JobSourceManual || s == JobSourceScheduled || s == JobSourceAPI
}

// Valid returns true if the DataFormat is valid.
func (f DataFormat) Valid() bool {
	return f == FormatJSON || f == FormatCSV || f == FormatXML || f == FormatPDF
}

// Ext returns the file extension for the format, without the leading dot.
func (f DataFormat) Ext() string {
	return strings.ToLower(string(f))
}

// UnmarshalText implements encoding.TextUnmarshaler for DataFormat.
func (f *DataFormat) UnmarshalText(text []byte) error {
	v := DataFormat(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid DataFormat: %q", string(text))
	}
	*f = v
	return nil
}

// Job represents a report job with all its request metadata and execution state.
// BearerToken is never serialized to JSON; it is persisted encrypted and flows
// through the pipeline as an opaque payload.
type Job struct {
	JobID                   string          `json:"jobId"                             db:"job_id"`
	Status                  JobStatus       `json:"status"                            db:"status"`
	Priority                int             `json:"priority"                          db:"priority"`
	JobSource               JobSource       `json:"jobSource"                         db:"job_source"`
	UserRole                string          `json:"userRole"                          db:"user_role"`
	ReportType              string          `json:"reportType"                        db:"report_type"`
	TargetSystem            string          `json:"targetSystem"                      db:"target_system"`
	DataFormat              DataFormat      `json:"dataFormat"                        db:"data_format"`
	ChunkSize               int             `json:"chunkSize"                         db:"chunk_size"`
	TenantID                *string         `json:"tenantId,omitempty"                db:"tenant_id"`
	UserID                  *string         `json:"userId,omitempty"                  db:"user_id"`
	RequestData             json.RawMessage `json:"requestData,omitempty"             db:"request_data"`
	BearerToken             string          `json:"-"                                 db:"bearer_token"`
	Progress                int             `json:"progress"                          db:"progress"`
	TotalRecords            *int64          `json:"totalRecords,omitempty"            db:"total_records"`
	ProcessedRecords        int64           `json:"processedRecords"                  db:"processed_records"`
	ResultPath              *string         `json:"resultPath,omitempty"              db:"result_path"`
	ErrorMessage            *string         `json:"errorMessage,omitempty"            db:"error_message"`
	ParentJobID             *string         `json:"parentJobId,omitempty"             db:"parent_job_id"`
	EstimatedCompletionTime *time.Time      `json:"estimatedCompletionTime,omitempty" db:"estimated_completion_time"`
	CreatedAt               time.Time       `json:"createdAt"                         db:"created_at"`
	StartedAt               *time.Time      `json:"startedAt,omitempty"               db:"started_at"`
	CompletedAt             *time.Time      `json:"completedAt,omitempty"             db:"completed_at"`
	UpdatedAt               time.Time       `json:"updatedAt"                         db:"updated_at"`
}

// Tenant returns the job's tenant id or "" when unrestricted.
func (j *Job) Tenant() string {
	if j.TenantID == nil {
		return ""
	}
	return *j.TenantID
}

// NewJobID generates a fresh job identifier: "JOB_" plus eight uppercase hex
// characters derived from a UUID.
func NewJobID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "JOB_" + strings.ToUpper(raw[:8])
}

// DateRange is an inclusive [Start, End] window over service dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

const dateRangeLayout = "2006-01-02"

// dateRangeJSON is the wire shape of DateRange.
type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON encodes the range as calendar dates.
func (d DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{
		Start: d.Start.Format(dateRangeLayout),
		End:   d.End.Format(dateRangeLayout),
	})
}

// UnmarshalJSON accepts calendar dates (2006-01-02) or RFC3339 timestamps.
func (d *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseFlexibleDate(raw.Start)
	if err != nil {
		return fmt.Errorf("invalid date range start: %w", err)
	}
	end, err := parseFlexibleDate(raw.End)
	if err != nil {
		return fmt.Errorf("invalid date range end: %w", err)
	}
	d.Start, d.End = start, end
	return nil
}

func parseFlexibleDate(v string) (time.Time, error) {
	if t, err := time.Parse(dateRangeLayout, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// Validate checks the range is well formed.
func (d DateRange) Validate() error {
	if d.Start.IsZero() || d.End.IsZero() {
		return errors.New("date range requires both start and end")
	}
	if d.End.Before(d.Start) {
		return errors.New("date range end precedes start")
	}
	return nil
}

// CreateReportRequest is the admitted request body. It is serialized verbatim
// into the job's RequestData so dependents and auditors can recover the
// original submission.
type CreateReportRequest struct {
	ReportType   string            `json:"reportType"`
	TargetSystem string            `json:"targetSystem"`
	DataFormat   DataFormat        `json:"dataFormat"`
	ChunkSize    int               `json:"chunkSize,omitempty"`
	Priority     int               `json:"priority,omitempty"`
	TenantID     string            `json:"tenantId,omitempty"`
	DateRange    *DateRange        `json:"dateRange,omitempty"`
	ExtraFilters map[string]string `json:"extraFilters,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Validate validates the CreateReportRequest fields.
func (r *CreateReportRequest) Validate() error {
	if strings.TrimSpace(r.ReportType) == "" {
		return errors.New("report type is required")
	}
	if !r.DataFormat.Valid() {
		return errors.New("invalid data format")
	}
	if r.ChunkSize < 0 {
		return errors.New("chunk size must be >= 0")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.DateRange != nil {
		if err := r.DateRange.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// JobStats represents counts of jobs in each lifecycle state.
type JobStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// JobStatusResponse is the externally visible execution state of a job.
// Failed jobs expose a concise errorMessage and never a stack trace.
type JobStatusResponse struct {
	JobID        string     `json:"jobId"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	ResultPath   *string    `json:"resultPath,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// StatusOf projects a job into its JobStatusResponse.
func StatusOf(j *Job) JobStatusResponse {
	return JobStatusResponse{
		JobID:        j.JobID,
		Status:       j.Status,
		Progress:     j.Progress,
		ResultPath:   j.ResultPath,
		ErrorMessage: j.ErrorMessage,
		CompletedAt:  j.CompletedAt,
	}
}
