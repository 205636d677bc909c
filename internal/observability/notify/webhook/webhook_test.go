package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caseworks/report-engine/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestSendDeliveryPostsEnvelope(t *testing.T) {
	var got envelope
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		URL:        srv.URL,
		AuthHeader: "Bearer hook-token",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendDelivery(context.Background(), notify.DeliveryPayload{
		JobID:       "JOB_AB12CD34",
		ReportType:  "DAILY_SUMMARY",
		UserRole:    "CASE_WORKER",
		TenantID:    "CT1",
		ResultPath:  "reports/report_JOB_AB12CD34_20260214_093005.json",
		RecordCount: 42,
		JobSource:   "API",
		CompletedAt: time.Date(2026, 2, 14, 9, 30, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer hook-token" {
		t.Fatalf("expected auth header to be forwarded, got %q", auth)
	}
	if got.Event != EventDelivered {
		t.Fatalf("expected event %q, got %q", EventDelivered, got.Event)
	}

	payload, ok := got.Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected payload object, got %T", got.Payload)
	}
	if payload["jobId"] != "JOB_AB12CD34" {
		t.Fatalf("expected jobId in payload, got %v", payload["jobId"])
	}
	if payload["recordCount"] != float64(42) {
		t.Fatalf("expected recordCount 42, got %v", payload["recordCount"])
	}
	if payload["completedAt"] != "2026-02-14T09:30:05Z" {
		t.Fatalf("expected RFC3339 completedAt, got %v", payload["completedAt"])
	}
}

func TestSendFailureDefaultsSeverity(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:      "JOB_FF00AA11",
		ReportType: "COUNTY_DAILY",
		Error:      "boom",
		ErrorClass: "write_failure",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, ok := got.Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected payload object, got %T", got.Payload)
	}
	if payload["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payload["severity"])
	}
	if payload["errorClass"] != "write_failure" {
		t.Fatalf("expected error class, got %v", payload["errorClass"])
	}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL, RetryLimit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendBatchSummary(context.Background(), notify.BatchSummaryPayload{
		Cadence:   "daily",
		Total:     4,
		Succeeded: 4,
	})
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSendSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("unknown event"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = client.SendDelivery(context.Background(), notify.DeliveryPayload{JobID: "JOB_00000000"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "unknown event") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestSendStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL, RetryLimit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.SendDelivery(ctx, notify.DeliveryPayload{JobID: "JOB_00000000"})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
