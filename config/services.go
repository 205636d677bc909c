package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeAPI runs the report admission API.
	ServiceModeAPI ServiceMode = "api"
	// ServiceModeDispatcher runs the queue poller and worker pool.
	ServiceModeDispatcher ServiceMode = "dispatcher"
	// ServiceModeScheduler runs the cron fan-out.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeTestHarness runs the bounded pipeline test harness.
	ServiceModeTestHarness ServiceMode = "test-harness"
	// ServiceModeRetention runs the terminal-job retention sweeper.
	ServiceModeRetention ServiceMode = "retention"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeAPI,
		ServiceModeDispatcher,
		ServiceModeScheduler,
		ServiceModeTestHarness,
		ServiceModeRetention,
	}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. It validates that all names are valid and returns an
// error if any are not.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeAPI,
			ServiceModeDispatcher,
			ServiceModeScheduler,
			ServiceModeTestHarness,
			ServiceModeRetention:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: api, dispatcher, scheduler, test-harness, retention)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// DispatcherConfig contains queue dispatcher configuration.
type DispatcherConfig struct {
	// PollInterval is the queue polling period.
	PollInterval time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"5s"`

	// MaxJobsPerPoll caps claims per tick before the free-slot bound applies.
	MaxJobsPerPoll int `env:"DISPATCH_MAX_JOBS_PER_POLL" envDefault:"10"`

	// PoolSize bounds concurrently executing report jobs.
	PoolSize int `env:"DISPATCH_POOL_SIZE" envDefault:"2"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.PollInterval < time.Second {
		d.PollInterval = time.Second
	}
	if d.MaxJobsPerPoll < 1 {
		d.MaxJobsPerPoll = 1
	}
	if d.PoolSize < 1 {
		d.PoolSize = 1
	}
}

// WorkerConfig contains report worker configuration.
type WorkerConfig struct {
	// OutputDir is where result artifacts land.
	OutputDir string `env:"REPORT_OUTPUT_DIR" envDefault:"reports"`

	// RetryAttempts bounds fetch attempts per chunk.
	RetryAttempts int `env:"WORKER_RETRY_ATTEMPTS" envDefault:"3"`

	// RetryBackoff is the linear backoff base between fetch attempts.
	RetryBackoff time.Duration `env:"WORKER_RETRY_BACKOFF" envDefault:"1s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.OutputDir == "" {
		w.OutputDir = "reports"
	}
	if w.RetryAttempts < 1 {
		w.RetryAttempts = 1
	}
	if w.RetryBackoff < 100*time.Millisecond {
		w.RetryBackoff = 100 * time.Millisecond
	}
}

// CronConfig contains scheduled fan-out configuration.
type CronConfig struct {
	// ProfilesPath points at the YAML fan-out profiles. Empty means the
	// scheduler has nothing to fan out and idles.
	ProfilesPath string `env:"CRON_PROFILES_PATH" envDefault:""`

	// HarnessInterval spaces pipeline test-harness firings.
	HarnessInterval time.Duration `env:"HARNESS_INTERVAL" envDefault:"2m"`

	// HarnessMaxRuns stops the harness after this many firings; 0 keeps the
	// built-in cap.
	HarnessMaxRuns int `env:"HARNESS_MAX_RUNS" envDefault:"0"`

	// HarnessProfile selects which profile the harness exercises; empty picks
	// the first.
	HarnessProfile string `env:"HARNESS_PROFILE" envDefault:""`

	// HarnessReportType overrides the report type the harness submits; empty
	// picks the profile's first type.
	HarnessReportType string `env:"HARNESS_REPORT_TYPE" envDefault:""`
}

// Sanitize applies guardrails to cron configuration values.
func (c *CronConfig) Sanitize() {
	if c.HarnessInterval <= 0 {
		c.HarnessInterval = 2 * time.Minute
	}
	if c.HarnessMaxRuns < 0 {
		c.HarnessMaxRuns = 0
	}
}

// RetentionConfig contains terminal-job retention configuration.
type RetentionConfig struct {
	// SweepInterval is the sweeper tick period.
	SweepInterval time.Duration `env:"RETENTION_SWEEP_INTERVAL" envDefault:"1h"`

	// MaxAge is the minimum age of a terminal job before it is purged,
	// measured from completion.
	MaxAge time.Duration `env:"RETENTION_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to delete per sweep.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"RETENTION_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to retention configuration values.
func (r *RetentionConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.SweepInterval < 1*time.Minute {
		r.SweepInterval = 1 * time.Minute
	}
	if r.MaxAge < 1*time.Hour {
		r.MaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
