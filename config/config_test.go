package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - api",
			input: "api",
			expected: map[ServiceMode]bool{
				ServiceModeAPI: true,
			},
			expectError: false,
		},
		{
			name:  "single service - dispatcher",
			input: "dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeDispatcher: true,
			},
			expectError: false,
		},
		{
			name:  "multiple services - api and dispatcher",
			input: "api,dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeAPI:        true,
				ServiceModeDispatcher: true,
			},
			expectError: false,
		},
		{
			name:  "all services",
			input: "api,dispatcher,scheduler,test-harness,retention",
			expected: map[ServiceMode]bool{
				ServiceModeAPI:         true,
				ServiceModeDispatcher:  true,
				ServiceModeScheduler:   true,
				ServiceModeTestHarness: true,
				ServiceModeRetention:   true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " api , dispatcher , retention ",
			expected: map[ServiceMode]bool{
				ServiceModeAPI:        true,
				ServiceModeDispatcher: true,
				ServiceModeRetention:  true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "api,api,dispatcher",
			expected: map[ServiceMode]bool{
				ServiceModeAPI:        true,
				ServiceModeDispatcher: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "api,invalid-service",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "mixed valid and invalid",
			input:       "api,dispatcher,invalid",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name               string
		services           string
		expectedAPI        bool
		expectedDispatcher bool
		expectedScheduler  bool
		expectedHarness    bool
		expectedRetention  bool
	}{
		{
			name:        "default - api only",
			services:    "api",
			expectedAPI: true,
		},
		{
			name:               "api and dispatcher",
			services:           "api,dispatcher",
			expectedAPI:        true,
			expectedDispatcher: true,
		},
		{
			name:               "everything",
			services:           "api,dispatcher,scheduler,test-harness,retention",
			expectedAPI:        true,
			expectedDispatcher: true,
			expectedScheduler:  true,
			expectedHarness:    true,
			expectedRetention:  true,
		},
		{
			name:              "retention only",
			services:          "retention",
			expectedRetention: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsAPIEnabled() != tt.expectedAPI {
				t.Errorf("IsAPIEnabled(): expected %v, got %v", tt.expectedAPI, cfg.IsAPIEnabled())
			}
			if cfg.IsDispatcherEnabled() != tt.expectedDispatcher {
				t.Errorf("IsDispatcherEnabled(): expected %v, got %v", tt.expectedDispatcher, cfg.IsDispatcherEnabled())
			}
			if cfg.IsSchedulerEnabled() != tt.expectedScheduler {
				t.Errorf("IsSchedulerEnabled(): expected %v, got %v", tt.expectedScheduler, cfg.IsSchedulerEnabled())
			}
			if cfg.IsTestHarnessEnabled() != tt.expectedHarness {
				t.Errorf("IsTestHarnessEnabled(): expected %v, got %v", tt.expectedHarness, cfg.IsTestHarnessEnabled())
			}
			if cfg.IsRetentionEnabled() != tt.expectedRetention {
				t.Errorf("IsRetentionEnabled(): expected %v, got %v", tt.expectedRetention, cfg.IsRetentionEnabled())
			}
		})
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := AppConfig{Services: "invalid-service"}

	// All methods should return false when configuration is invalid
	if cfg.IsAPIEnabled() {
		t.Errorf("IsAPIEnabled() with invalid config: expected false, got true")
	}
	if cfg.IsDispatcherEnabled() {
		t.Errorf("IsDispatcherEnabled() with invalid config: expected false, got true")
	}
	if cfg.IsSchedulerEnabled() {
		t.Errorf("IsSchedulerEnabled() with invalid config: expected false, got true")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{
		ServiceModeAPI,
		ServiceModeDispatcher,
		ServiceModeScheduler,
		ServiceModeTestHarness,
		ServiceModeRetention,
	}

	if len(modes) != len(expected) {
		t.Errorf("expected %d service modes, got %d", len(expected), len(modes))
	}

	for i, mode := range modes {
		if mode != expected[i] {
			t.Errorf("expected service mode %s at index %d, got %s", expected[i], i, mode)
		}
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "oidc")
	t.Setenv("AUTH_CLIENT_ID", "cmips-reports")
	t.Setenv("OIDC_ISSUER_URL", "https://sso.example.gov/realms/cmips")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := AuthConfig{
		Mode:      AuthModeOIDC,
		ClientID:  "cmips-reports",
		IssuerURL: "https://sso.example.gov/realms/cmips",
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
}

func TestAppConfig_RejectsUnknownAuthMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "trust-everyone")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected parse to reject unknown auth mode")
	}
}

func TestAppConfig_ParseIdentityEnv(t *testing.T) {
	t.Setenv("IDP_BASE_URL", "https://sso.example.gov/")
	t.Setenv("IDP_REALM", "cmips")
	t.Setenv("IDP_CLIENT_UUID", "a81bc81b-dead-4e5d-abff-90865d1e13b1")
	t.Setenv("IDP_ADMIN_USERNAME", "svc-reports")
	t.Setenv("IDP_ADMIN_PASSWORD", "hunter2")
	t.Setenv("IDP_MINTER_CLIENT_ID", "report-cron")
	t.Setenv("IDP_SERVICE_PASSWORD", "cron-secret")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.Identity.AdminEnabled() {
		t.Fatal("expected admin client to be enabled")
	}
	if !cfg.Identity.MinterEnabled() {
		t.Fatal("expected minter to be enabled")
	}
	if cfg.Identity.BaseURL != "https://sso.example.gov" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.Identity.BaseURL)
	}
}

func TestAppConfig_ParseEstimateMinutes(t *testing.T) {
	t.Setenv("REPORT_ESTIMATE_MINUTES", "DAILY_SUMMARY:10,QUARTERLY_SUMMARY:45")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := map[string]int{
		"DAILY_SUMMARY":     10,
		"QUARTERLY_SUMMARY": 45,
	}
	if !reflect.DeepEqual(cfg.Report.EstimateMinutes, expected) {
		t.Fatalf("unexpected estimates:\nexpected: %#v\ngot:      %#v", expected, cfg.Report.EstimateMinutes)
	}
}

func TestDBConfig_Sanitize(t *testing.T) {
	cfg := DBConfig{
		MaxOpenConns:    0,
		MaxIdleConns:    40,
		ConnMaxLifetime: -time.Second,
	}

	cfg.Sanitize()

	if cfg.MaxOpenConns != 25 {
		t.Fatalf("expected max open conns default of 25, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns != 25 {
		t.Fatalf("expected max idle conns capped at max open, got %d", cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("expected conn lifetime default of 5m, got %v", cfg.ConnMaxLifetime)
	}
}

func TestDispatcherConfig_Sanitize(t *testing.T) {
	cfg := DispatcherConfig{
		PollInterval:   time.Millisecond,
		MaxJobsPerPoll: 0,
		PoolSize:       -1,
	}

	cfg.Sanitize()

	if cfg.PollInterval < time.Second {
		t.Fatalf("expected poll interval to be clamped, got %v", cfg.PollInterval)
	}
	if cfg.MaxJobsPerPoll != 1 {
		t.Fatalf("expected max jobs per poll to be clamped to 1, got %d", cfg.MaxJobsPerPoll)
	}
	if cfg.PoolSize != 1 {
		t.Fatalf("expected pool size to be clamped to 1, got %d", cfg.PoolSize)
	}
}

func TestRetentionConfig_Sanitize(t *testing.T) {
	cfg := RetentionConfig{
		SweepInterval: time.Second,
		MaxAge:        time.Minute,
		BatchSize:     50000,
	}

	cfg.Sanitize()

	if cfg.SweepInterval != 1*time.Minute {
		t.Fatalf("expected sweep interval floor of 1m, got %v", cfg.SweepInterval)
	}
	if cfg.MaxAge != 1*time.Hour {
		t.Fatalf("expected max age floor of 1h, got %v", cfg.MaxAge)
	}
	if cfg.BatchSize != 10000 {
		t.Fatalf("expected batch size cap of 10000, got %d", cfg.BatchSize)
	}
}

func TestReportConfig_SanitizeDropsNonPositiveEstimates(t *testing.T) {
	cfg := ReportConfig{
		DefaultChunkSize: 0,
		EstimateMinutes: map[string]int{
			"DAILY_SUMMARY":  10,
			"BROKEN_PROFILE": -5,
		},
	}

	cfg.Sanitize()

	if cfg.DefaultChunkSize != 1000 {
		t.Fatalf("expected default chunk size fallback, got %d", cfg.DefaultChunkSize)
	}
	if _, ok := cfg.EstimateMinutes["BROKEN_PROFILE"]; ok {
		t.Fatal("expected non-positive estimate to be dropped")
	}
	if cfg.EstimateMinutes["DAILY_SUMMARY"] != 10 {
		t.Fatal("expected valid estimate to survive")
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Webhook: WebhookNotificationConfig{
			Enabled: true,
			URL:     " ",
		},
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Webhook.Enabled {
		t.Fatal("expected webhook to be disabled without a url")
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "report-engine" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Webhook: WebhookNotificationConfig{
			Enabled: true,
			URL:     "https://hooks.example.gov/reports",
		},
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Webhook.Enabled {
		t.Fatal("expected webhook to be disabled when top-level notifications disabled")
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
