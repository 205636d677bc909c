// Package hooks fans report lifecycle notifications out to registered sinks.
// Delivery is best effort: sink errors are logged and never fed back into the
// job pipeline.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caseworks/report-engine/internal/observability/metrics"
	"github.com/caseworks/report-engine/internal/observability/notify"
	"github.com/caseworks/report-engine/internal/observability/statsd"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notification hook service.
type Options struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
	Sinks   []SinkRegistration
}

// Service dispatches report lifecycle events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	metrics statsd.Sink
	sinks   []SinkRegistration
}

// NewService constructs a notification hook service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "report_hooks")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger:  logger,
		metrics: opts.Metrics,
		sinks:   sinks,
	}
}

// NotifyDelivery fan-outs a completion event to all sinks.
func (s *Service) NotifyDelivery(ctx context.Context, payload notify.DeliveryPayload) {
	if len(s.sinks) == 0 {
		return
	}
	if payload.CompletedAt.IsZero() {
		payload.CompletedAt = time.Now().UTC()
	}

	s.fanOut(ctx, "delivery", payload.JobID, func(sink notify.Sink) error {
		return sink.SendDelivery(ctx, payload)
	})
}

// NotifyJobFailure fan-outs the job failure payload to all sinks.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	s.fanOut(ctx, "job_failure", payload.JobID, func(sink notify.Sink) error {
		return sink.SendJobFailure(ctx, payload)
	})
}

// NotifyBatchSummary fan-outs a scheduled batch summary to all sinks.
func (s *Service) NotifyBatchSummary(ctx context.Context, payload notify.BatchSummaryPayload) {
	if len(s.sinks) == 0 {
		return
	}

	s.fanOut(ctx, "batch_summary", payload.ProfileKey, func(sink notify.Sink) error {
		return sink.SendBatchSummary(ctx, payload)
	})
}

func (s *Service) fanOut(ctx context.Context, kind, subject string, send func(notify.Sink) error) {
	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := send(entry.Sink); err != nil {
				metrics.EmitNotification(s.metrics, kind, metrics.ResultError)
				s.logger.Error("notification delivery error",
					"sink", entry.Name,
					"kind", kind,
					"subject", subject,
					"error", err,
				)
				return
			}
			metrics.EmitNotification(s.metrics, kind, metrics.ResultSuccess)
		}()
	}
	wg.Wait()
}

// Enabled reports whether any sinks are registered.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
