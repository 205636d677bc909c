package config

import (
	"os"
	"strings"
	"time"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: admission auth and identity-provider configuration
//   - database.go: database, Redis, and rule cache configuration
//   - http.go: HTTP server configuration
//   - report.go: report pipeline configuration
//   - services.go: service mode and runner configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Services is a comma-delimited list of enabled services.
	// Valid values: api, dispatcher, scheduler, test-harness, retention
	Services string `env:"SERVICES" envDefault:"api"`

	// TokenEncKey encrypts job bearer tokens at rest; 64 hex characters
	// (32 bytes). Empty leaves tokens in plaintext, which is only acceptable
	// in development.
	TokenEncKey string `env:"TOKEN_ENC_KEY"`

	// ShutdownGrace bounds how long shutdown waits for in-flight work.
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"15s"`

	// Authentication configuration
	Auth     AuthConfig
	Identity IdentityConfig `envPrefix:"IDP_"`

	// Database configuration
	Postgres  DBConfig        `envPrefix:"DB_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RuleCache RuleCacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Report pipeline configuration
	Report ReportConfig

	// Runner configuration
	Dispatcher DispatcherConfig
	Worker     WorkerConfig
	Cron       CronConfig
	Retention  RetentionConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.HTTP.Sanitize()
	c.Report.Sanitize()
	c.Dispatcher.Sanitize()
	c.Worker.Sanitize()
	c.Cron.Sanitize()
	c.Retention.Sanitize()
	c.RuleCache.Sanitize()
	c.Identity.Sanitize()
	c.Observability.Sanitize()

	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 15 * time.Second
	}

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsAPIEnabled returns true if the admission API service is enabled.
func (c *AppConfig) IsAPIEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeAPI]
}

// IsDispatcherEnabled returns true if the dispatcher service is enabled.
func (c *AppConfig) IsDispatcherEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeDispatcher]
}

// IsSchedulerEnabled returns true if the cron fan-out service is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeScheduler]
}

// IsTestHarnessEnabled returns true if the pipeline test harness is enabled.
func (c *AppConfig) IsTestHarnessEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeTestHarness]
}

// IsRetentionEnabled returns true if the retention sweeper is enabled.
func (c *AppConfig) IsRetentionEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeRetention]
}
