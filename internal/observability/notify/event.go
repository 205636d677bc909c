package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityInfo     = "info"
)

// DeliveryPayload captures the canonical data we emit when a report job
// completes and its artifact is available.
type DeliveryPayload struct {
	JobID        string
	ReportType   string
	UserRole     string
	TenantID     string
	TargetSystem string
	ResultPath   string
	RecordCount  int64
	JobSource    string
	CompletedAt  time.Time
	Metadata     map[string]string
}

// JobFailurePayload captures the canonical data we emit for job failure
// notifications.
type JobFailurePayload struct {
	JobID      string
	ReportType string
	UserRole   string
	TenantID   string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// BatchSummaryPayload summarises one cron fan-out batch.
type BatchSummaryPayload struct {
	Cadence    string
	ProfileKey string
	Total      int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Sink describes a destination capable of consuming report notifications.
type Sink interface {
	SendDelivery(ctx context.Context, payload DeliveryPayload) error
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
	SendBatchSummary(ctx context.Context, payload BatchSummaryPayload) error
}

// Funcs adapts plain functions to the Sink interface (useful for tests).
// Nil members act as no-ops.
type Funcs struct {
	DeliveryFunc     func(ctx context.Context, payload DeliveryPayload) error
	JobFailureFunc   func(ctx context.Context, payload JobFailurePayload) error
	BatchSummaryFunc func(ctx context.Context, payload BatchSummaryPayload) error
}

// SendDelivery implements the Sink interface.
func (f Funcs) SendDelivery(ctx context.Context, payload DeliveryPayload) error {
	if f.DeliveryFunc == nil {
		return nil
	}
	return f.DeliveryFunc(ctx, payload)
}

// SendJobFailure implements the Sink interface.
func (f Funcs) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f.JobFailureFunc == nil {
		return nil
	}
	return f.JobFailureFunc(ctx, payload)
}

// SendBatchSummary implements the Sink interface.
func (f Funcs) SendBatchSummary(ctx context.Context, payload BatchSummaryPayload) error {
	if f.BatchSummaryFunc == nil {
		return nil
	}
	return f.BatchSummaryFunc(ctx, payload)
}
