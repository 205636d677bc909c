// Package webhook delivers report notifications to a generic JSON webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/observability/notify"
)

// Event names carried in the webhook envelope.
const (
	EventDelivered    = "report.delivered"
	EventFailed       = "report.failed"
	EventBatchSummary = "report.batch_summary"
)

// Config captures the webhook endpoint behaviour we need.
type Config struct {
	URL        string
	AuthHeader string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client posts notification envelopes to a webhook endpoint.
type Client struct {
	url        string
	authHeader string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:        url,
		authHeader: strings.TrimSpace(cfg.AuthHeader),
		retryLimit: retries,
		client:     hc,
	}, nil
}

// envelope is the wire shape of every webhook notification.
type envelope struct {
	Event   string `json:"event"`
	SentAt  string `json:"sentAt"`
	Payload any    `json:"payload"`
}

// SendDelivery posts a completion notification.
func (c *Client) SendDelivery(ctx context.Context, payload notify.DeliveryPayload) error {
	body := map[string]any{
		"jobId":        payload.JobID,
		"reportType":   payload.ReportType,
		"userRole":     payload.UserRole,
		"tenantId":     payload.TenantID,
		"targetSystem": payload.TargetSystem,
		"resultPath":   payload.ResultPath,
		"recordCount":  payload.RecordCount,
		"jobSource":    payload.JobSource,
		"completedAt":  timestamp(payload.CompletedAt),
	}
	if len(payload.Metadata) > 0 {
		body["metadata"] = payload.Metadata
	}
	return c.send(ctx, EventDelivered, body)
}

// SendJobFailure posts an error notification.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	severity := payload.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	body := map[string]any{
		"jobId":      payload.JobID,
		"reportType": payload.ReportType,
		"userRole":   payload.UserRole,
		"tenantId":   payload.TenantID,
		"error":      payload.Error,
		"errorClass": payload.ErrorClass,
		"severity":   severity,
		"occurredAt": timestamp(payload.OccurredAt),
	}
	if len(payload.Metadata) > 0 {
		body["metadata"] = payload.Metadata
	}
	return c.send(ctx, EventFailed, body)
}

// SendBatchSummary posts a cron batch summary.
func (c *Client) SendBatchSummary(ctx context.Context, payload notify.BatchSummaryPayload) error {
	return c.send(ctx, EventBatchSummary, map[string]any{
		"cadence":    payload.Cadence,
		"profileKey": payload.ProfileKey,
		"total":      payload.Total,
		"succeeded":  payload.Succeeded,
		"failed":     payload.Failed,
		"startedAt":  timestamp(payload.StartedAt),
		"finishedAt": timestamp(payload.FinishedAt),
	})
}

func (c *Client) send(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(envelope{
		Event:   event,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			// Simple linear backoff to avoid thundering retries.
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}

	return drainSuccess(resp)
}

func drainSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain webhook response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain webhook response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("read webhook error response: %w", readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("read webhook error response: %w", readErr)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return fmt.Errorf("webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
