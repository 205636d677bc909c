package pagerduty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/caseworks/report-engine/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildTriggerEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := notify.JobFailurePayload{
		JobID:      "JOB_20260801_0001",
		ReportType: "DAILY_SUMMARY",
		UserRole:   "CASE_WORKER",
		TenantID:   "CT15",
		Error:      "boom",
		ErrorClass: "retryable",
	}
	event := client.buildTriggerEvent(payload)

	if event["event_action"] != "trigger" {
		t.Fatalf("expected trigger action, got %v", event["event_action"])
	}

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "report-engine" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "report-engine" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"job_id", "report_type", "user_role", "tenant_id", "error", "error_class"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	dedup, _ := event["dedup_key"].(string)
	if !strings.Contains(dedup, "JOB_20260801_0001") {
		t.Fatalf("expected dedup key to reference job id, got %s", dedup)
	}
}

func TestBuildTriggerEventMergesMetadata(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildTriggerEvent(notify.JobFailurePayload{
		JobID: "JOB_20260801_0002",
		Error: "boom",
		Metadata: map[string]string{
			"attempt": "3",
			"job_id":  "should-not-clobber",
		},
	})

	payloadSection := event["payload"].(map[string]any)
	custom := payloadSection["custom_details"].(map[string]any)
	if custom["attempt"] != "3" {
		t.Fatalf("expected metadata key, got %v", custom["attempt"])
	}
	if custom["job_id"] != "JOB_20260801_0002" {
		t.Fatalf("expected payload field to win over metadata, got %v", custom["job_id"])
	}
}

func TestBuildResolveEventMatchesTriggerDedup(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trigger := client.buildTriggerEvent(notify.JobFailurePayload{
		JobID:      "JOB_20260801_0003",
		ReportType: "WEEKLY_SUMMARY",
	})
	resolve := client.buildResolveEvent(notify.DeliveryPayload{
		JobID:      "JOB_20260801_0003",
		ReportType: "WEEKLY_SUMMARY",
	})

	if resolve["event_action"] != "resolve" {
		t.Fatalf("expected resolve action, got %v", resolve["event_action"])
	}
	if trigger["dedup_key"] != resolve["dedup_key"] {
		t.Fatalf("expected matching dedup keys, trigger=%v resolve=%v", trigger["dedup_key"], resolve["dedup_key"])
	}
}

func TestBuildBatchEventCounts(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildBatchEvent(notify.BatchSummaryPayload{
		Cadence:    "daily",
		ProfileKey: "daily-supervisor",
		Total:      10,
		Succeeded:  7,
		Failed:     3,
	})

	payloadSection := event["payload"].(map[string]any)
	summary, _ := payloadSection["summary"].(string)
	if !strings.Contains(summary, "3 of 10") {
		t.Fatalf("expected failure counts in summary, got %s", summary)
	}
	if payloadSection["severity"] != "error" {
		t.Fatalf("expected error severity, got %v", payloadSection["severity"])
	}

	dedup, _ := event["dedup_key"].(string)
	if dedup != "report-batch:daily:daily-supervisor" {
		t.Fatalf("unexpected dedup key %s", dedup)
	}
}

func TestSendBatchSummarySkipsHealthyBatches(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Client: &http.Client{
		Transport: failingTransport{},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendBatchSummary(context.Background(), notify.BatchSummaryPayload{
		Cadence:   "daily",
		Total:     5,
		Succeeded: 5,
	})
	if err != nil {
		t.Fatalf("expected healthy batch to be skipped, got %v", err)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("transport should not be used")
}
