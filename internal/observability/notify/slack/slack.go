// Package slack delivers report lifecycle notifications to a Slack incoming
// webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client posts formatted report notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
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
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   fallbackString(strings.TrimSpace(cfg.Username), "report-engine"),
		retryLimit: retries,
		client:     hc,
	}, nil
}

// SendDelivery posts a completion message to Slack.
func (c *Client) SendDelivery(ctx context.Context, payload notify.DeliveryPayload) error {
	return c.send(ctx, c.formatDelivery(payload))
}

func (c *Client) formatDelivery(payload notify.DeliveryPayload) map[string]any {
	text := strings.Builder{}
	text.WriteString("*Report delivered*")
	if payload.JobID != "" {
		text.WriteString(" `")
		text.WriteString(payload.JobID)
		text.WriteByte('`')
	}
	if payload.ReportType != "" {
		text.WriteString(" (")
		text.WriteString(payload.ReportType)
		text.WriteByte(')')
	}
	text.WriteByte('\n')

	appendSlackField(&text, "Role", payload.UserRole)
	appendSlackField(&text, "Tenant", payload.TenantID)
	appendSlackField(&text, "Target", payload.TargetSystem)
	appendSlackField(&text, "Records", strconv.FormatInt(payload.RecordCount, 10))
	appendSlackField(&text, "Artifact", payload.ResultPath)
	appendSlackField(&text, "Source", payload.JobSource)
	appendSlackMetadata(&text, payload.Metadata)
	writeSlackTimestamp(&text, payload.CompletedAt)

	return c.message(text.String())
}

// SendJobFailure posts a formatted failure message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.send(ctx, c.formatJobFailure(payload))
}

func (c *Client) formatJobFailure(payload notify.JobFailurePayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	text := strings.Builder{}
	text.WriteString("*Report job failed*")
	if payload.JobID != "" {
		text.WriteString(" `")
		text.WriteString(payload.JobID)
		text.WriteByte('`')
	}
	if payload.ReportType != "" {
		text.WriteString(" (")
		text.WriteString(payload.ReportType)
		text.WriteByte(')')
	}
	text.WriteByte('\n')

	appendSlackField(&text, "Severity", fallbackString(payload.Severity, notify.SeverityCritical))
	appendSlackField(&text, "Role", payload.UserRole)
	appendSlackField(&text, "Tenant", payload.TenantID)
	appendSlackField(&text, "Error class", payload.ErrorClass)
	appendSlackField(&text, "Error", escapeSlackText(payload.Error))
	appendSlackMetadata(&text, payload.Metadata)
	writeSlackTimestamp(&text, timestamp)

	return c.message(text.String())
}

// SendBatchSummary posts a cron fan-out summary to Slack.
func (c *Client) SendBatchSummary(ctx context.Context, payload notify.BatchSummaryPayload) error {
	return c.send(ctx, c.formatBatchSummary(payload))
}

func (c *Client) formatBatchSummary(payload notify.BatchSummaryPayload) map[string]any {
	text := strings.Builder{}
	text.WriteString("*Scheduled report batch*")
	if payload.Cadence != "" {
		text.WriteString(" `")
		text.WriteString(payload.Cadence)
		text.WriteByte('`')
	}
	if payload.ProfileKey != "" {
		text.WriteString(" (")
		text.WriteString(payload.ProfileKey)
		text.WriteByte(')')
	}
	text.WriteByte('\n')

	appendSlackField(&text, "Submitted", strconv.Itoa(payload.Total))
	appendSlackField(&text, "Succeeded", strconv.Itoa(payload.Succeeded))
	appendSlackField(&text, "Failed", strconv.Itoa(payload.Failed))
	writeSlackTimestamp(&text, payload.FinishedAt)

	return c.message(text.String())
}

func (c *Client) message(text string) map[string]any {
	msg := map[string]any{
		"text":     text,
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// send posts the message with linear-backoff retries.
func (c *Client) send(ctx context.Context, msg map[string]any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
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

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}

	return drainSlackSuccess(resp)
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func drainSlackSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain slack response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain slack response body: %w", err)
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
				fmt.Errorf("read slack error response: %w", readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("read slack error response: %w", readErr)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendSlackMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := metadata[k]
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(v)
		text.WriteByte('\n')
	}
}

func writeSlackTimestamp(text *strings.Builder, timestamp time.Time) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))
}
