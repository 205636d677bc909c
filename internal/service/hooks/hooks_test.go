package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/caseworks/report-engine/internal/observability/notify"
)

func TestServiceNotifyJobFailure(t *testing.T) {
	ctx := context.Background()

	var received []notify.JobFailurePayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.Funcs{
					JobFailureFunc: func(ctx context.Context, payload notify.JobFailurePayload) error {
						received = append(received, payload)
						return nil
					},
				},
			},
		},
	})

	svc.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      "JOB_AB12CD34",
		ReportType: "DAILY_SUMMARY",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
	if received[0].OccurredAt.IsZero() {
		t.Fatal("expected OccurredAt to be stamped")
	}
}

func TestServiceNotifyDelivery(t *testing.T) {
	ctx := context.Background()

	var received []notify.DeliveryPayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.Funcs{
					DeliveryFunc: func(ctx context.Context, payload notify.DeliveryPayload) error {
						received = append(received, payload)
						return nil
					},
				},
			},
		},
	})

	svc.NotifyDelivery(ctx, notify.DeliveryPayload{
		JobID:       "JOB_AB12CD34",
		ReportType:  "DAILY_SUMMARY",
		ResultPath:  "reports/report_JOB_AB12CD34_20260214_093005.json",
		RecordCount: 7,
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].CompletedAt.IsZero() {
		t.Fatal("expected CompletedAt to be stamped")
	}
}

func TestServiceFansOutToAllSinks(t *testing.T) {
	var calls atomic.Int32
	capture := notify.Funcs{
		BatchSummaryFunc: func(ctx context.Context, payload notify.BatchSummaryPayload) error {
			calls.Add(1)
			return nil
		},
	}

	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "first", Sink: capture},
			{Name: "second", Sink: capture},
		},
	})

	svc.NotifyBatchSummary(context.Background(), notify.BatchSummaryPayload{
		Cadence:   "daily",
		Total:     3,
		Succeeded: 3,
	})

	if calls.Load() != 2 {
		t.Fatalf("expected both sinks invoked, got %d", calls.Load())
	}
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(Options{})
	if svc.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
}

func TestServiceSkipsNilSinks(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{{Name: "empty", Sink: nil}},
	})
	if svc.Enabled() {
		t.Fatal("expected nil sinks to be dropped")
	}
}

func TestServiceLogsErrors(t *testing.T) {
	// Ensure we don't panic when sink returns an error.
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.Funcs{
					JobFailureFunc: func(ctx context.Context, payload notify.JobFailurePayload) error {
						return errors.New("boom")
					},
				},
			},
		},
	})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "JOB_AB12CD34"})
}
