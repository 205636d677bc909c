package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/caseworks/report-engine/internal/observability/errors"
	"github.com/caseworks/report-engine/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultNoop      = "noop"
)

// JobMetric captures details about a report job lifecycle event for metric
// emission.
type JobMetric struct {
	ReportType string
	UserRole   string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised report job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"report_type": in.ReportType,
		"role":        in.UserRole,
		"transition":  in.Transition,
		"result":      in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("report.job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("report.job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepth records the number of QUEUED jobs seen by a dispatcher tick.
func EmitQueueDepth(sink statsd.Sink, depth int) {
	if sink == nil {
		return
	}
	sink.Gauge("report.queue.depth", float64(depth), nil)
}

// EmitChunkRetry counts a retried chunk fetch, tagged with the attempt number.
func EmitChunkRetry(sink statsd.Sink, reportType string, attempt int) {
	if sink == nil {
		return
	}
	sink.Count("report.chunk.retry", 1, map[string]string{
		"report_type": reportType,
		"attempt":     strconv.Itoa(attempt),
	})
}

// EmitNotification counts a notification hook delivery attempt.
func EmitNotification(sink statsd.Sink, kind, result string) {
	if sink == nil {
		return
	}
	sink.Count("report.notify", 1, map[string]string{
		"kind":   kind,
		"result": result,
	})
}

// EmitCronBatch records one cron fan-out batch for a profile: how many seeds
// it produced and how many of those failed to enqueue.
func EmitCronBatch(sink statsd.Sink, cadence, profile string, enqueued, failed int) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"cadence": cadence,
		"profile": profile,
	}
	sink.Count("report.cron.enqueued", int64(enqueued), tags)
	if failed > 0 {
		sink.Count("report.cron.failed", int64(failed), CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty maps.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
