package bootstrap

import (
	"testing"
	"time"

	"github.com/caseworks/report-engine/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "api only",
			modes: []config.ServiceMode{config.ServiceModeAPI},
			want:  1,
		},
		{
			name:  "api and dispatcher",
			modes: []config.ServiceMode{config.ServiceModeAPI, config.ServiceModeDispatcher},
			want:  2,
		},
		{
			name:  "scheduler and retention",
			modes: []config.ServiceMode{config.ServiceModeScheduler, config.ServiceModeRetention},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeAPI,
				config.ServiceModeDispatcher,
				config.ServiceModeScheduler,
				config.ServiceModeTestHarness,
				config.ServiceModeRetention,
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "api only",
			modes: []config.ServiceMode{config.ServiceModeAPI},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeAPI,
				config.ServiceModeDispatcher,
				config.ServiceModeScheduler,
				config.ServiceModeTestHarness,
				config.ServiceModeRetention,
			},
			want: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelBufferSize(enabled); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestBuildHooksDisabledNotificationsKeepsLogOnlyService(t *testing.T) {
	svc := buildHooks(nil, nil, config.ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: config.SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.example.com/services/T/B/X",
		},
	})
	if svc == nil {
		t.Fatal("buildHooks() = nil, want log-only service")
	}
	if svc.Enabled() {
		t.Fatal("buildHooks() registered sinks with notifications disabled")
	}
}

func TestBuildHooksRegistersConfiguredSinks(t *testing.T) {
	svc := buildHooks(nil, nil, config.ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    2 * time.Second,
		RetryLimit: 1,
		Slack: config.SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.example.com/services/T/B/X",
		},
		PagerDuty: config.PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "routing-key",
		},
	})
	if !svc.Enabled() {
		t.Fatal("buildHooks() registered no sinks with slack and pagerduty configured")
	}
}

func TestBuildHooksSkipsMisconfiguredSink(t *testing.T) {
	// Slack enabled without a webhook URL fails construction; the service
	// still comes up so the remaining modes are unaffected.
	svc := buildHooks(nil, nil, config.ObservabilityNotificationsConfig{
		Enabled: true,
		Slack:   config.SlackNotificationConfig{Enabled: true},
	})
	if svc == nil {
		t.Fatal("buildHooks() = nil, want service without sinks")
	}
	if svc.Enabled() {
		t.Fatal("buildHooks() registered a sink without a webhook URL")
	}
}

func TestBuildObservabilityMetricsDisabled(t *testing.T) {
	obs := buildObservability(nil, config.ObservabilityConfig{})
	if obs.MetricsSink != nil {
		t.Fatalf("buildObservability() MetricsSink = %v, want nil", obs.MetricsSink)
	}
	if obs.Hooks == nil {
		t.Fatal("buildObservability() Hooks = nil, want log-only service")
	}
}
