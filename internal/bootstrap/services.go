package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caseworks/report-engine/config"
	"github.com/caseworks/report-engine/internal/adapters/keycloak"
	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/data"
	"github.com/caseworks/report-engine/internal/domain/depend"
	"github.com/caseworks/report-engine/internal/domain/token"
	"github.com/caseworks/report-engine/internal/observability/notify/pagerduty"
	"github.com/caseworks/report-engine/internal/observability/notify/slack"
	"github.com/caseworks/report-engine/internal/observability/notify/webhook"
	"github.com/caseworks/report-engine/internal/observability/statsd"
	"github.com/caseworks/report-engine/internal/service"
	"github.com/caseworks/report-engine/internal/service/hooks"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Reports       *service.ReportService
	Masking       *service.MaskingResolver
	Deps          *service.DependencyService
	Inspector     *token.Inspector
	Minter        *keycloak.Minter     // nil unless the identity-provider minter is configured
	CacheRepo     core.CacheRepository // nil when Redis is not wired
	JobRepo       *data.ReportJobRepo
	Timesheets    *data.TimesheetRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	Hooks          *hooks.Service
	NotifierConfig config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB            *sql.DB
	Redis         redis.UniversalClient
	JobRepo       *data.ReportJobRepo
	TimesheetRepo *data.TimesheetRepo
	CacheRepo     core.CacheRepository // nil when Redis is not wired
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	hookSvc := buildHooks(obsLogger, metricsSink, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		Hooks:          hookSvc,
		NotifierConfig: cfg.Notifications,
	}
}

// buildHooks wires the notification fan-out. With no sinks configured the
// service still logs lifecycle events.
func buildHooks(logger *slog.Logger, metrics statsd.Sink, cfg config.ObservabilityNotificationsConfig) *hooks.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return hooks.NewService(hooks.Options{
			Logger:  baseLogger.With("component", "report_hooks"),
			Metrics: metrics,
		})
	}

	sinks := make([]hooks.SinkRegistration, 0, 3)

	if cfg.Webhook.Enabled {
		client, err := webhook.NewClient(webhook.Config{
			URL:        cfg.Webhook.URL,
			AuthHeader: cfg.Webhook.AuthHeader,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise webhook notifier", "error", err)
		} else {
			sinks = append(sinks, hooks.SinkRegistration{
				Name: "webhook",
				Sink: client,
			})
		}
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, hooks.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, hooks.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return hooks.NewService(hooks.Options{
		Logger:  baseLogger.With("component", "report_hooks"),
		Metrics: metrics,
		Sinks:   sinks,
	})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	var appCfg config.AppConfig
	if deps.Config != nil {
		appCfg = *deps.Config
	}

	cipher := CreateTokenCipher(appCfg.TokenEncKey, deps.Logger)

	repos := &serviceRepositories{
		DB:    deps.DB,
		Redis: deps.RedisClient,
		JobRepo: data.NewReportJobRepo(deps.DB, data.RepoConfig{
			Logger: deps.Logger,
			Cipher: cipher,
		}),
		TimesheetRepo: data.NewTimesheetRepo(deps.DB),
	}
	if deps.RedisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(deps.RedisClient)
	}
	return repos
}

// disabledRuleSource stands in when no identity-provider admin client is
// configured. Token-carried and cached rules still resolve; anything that
// reaches the provider fails.
type disabledRuleSource struct{}

func (disabledRuleSource) FetchMaskingRules(context.Context, string) ([]string, error) {
	return nil, errors.New("identity-provider admin client is not configured")
}

// buildAdminRuleSource wires the Keycloak admin client when configured.
//
//nolint:ireturn // returning core.RuleSource picks the real or disabled source at runtime.
func buildAdminRuleSource(cfg config.IdentityConfig, logger *slog.Logger) core.RuleSource {
	if !cfg.AdminEnabled() {
		if logger != nil {
			logger.Warn("identity-provider admin client not configured; masking rules must arrive in tokens or cache")
		}
		return disabledRuleSource{}
	}

	client, err := keycloak.NewAdminClient(keycloak.AdminConfig{
		BaseURL:           cfg.BaseURL,
		Realm:             cfg.Realm,
		ClientUUID:        cfg.ClientUUID,
		Username:          cfg.AdminUsername,
		Password:          cfg.AdminPassword,
		AdminClientID:     cfg.AdminClientID,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise identity-provider admin client", "error", err)
		}
		return disabledRuleSource{}
	}
	return client
}

// buildMinter wires the service-token minter when configured. Returns nil
// otherwise; the scheduler refuses to start without one.
func buildMinter(cfg config.IdentityConfig, logger *slog.Logger) *keycloak.Minter {
	if !cfg.MinterEnabled() {
		return nil
	}

	minter, err := keycloak.NewMinter(keycloak.MinterConfig{
		BaseURL:      cfg.BaseURL,
		Realm:        cfg.Realm,
		ClientID:     cfg.MinterClientID,
		ClientSecret: cfg.MinterClientSecret,
		Password:     cfg.ServicePassword,
		Timeout:      cfg.Timeout,
		Logger:       logger,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise service-token minter", "error", err)
		}
		return nil
	}
	return minter
}

// DomainServicesOptions groups inputs for buildDomainServices.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and observability adapters.
func buildDomainServices(opts *DomainServicesOptions) (ServiceContainer, error) {
	if opts == nil {
		return ServiceContainer{}, errors.New("domain service options are required")
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	reports := service.MustNewReportService(service.ReportServiceOptions{
		Repo:             opts.Repos.JobRepo,
		Logger:           svcLogger,
		EstimateMinutes:  appCfg.Report.EstimateMinutes,
		DefaultChunkSize: appCfg.Report.DefaultChunkSize,
	})

	ruleCache := core.NewRuleCacheService(core.RuleCacheServiceOptions{
		Cache:  opts.Repos.CacheRepo,
		Config: core.RuleCacheConfig{TTL: appCfg.RuleCache.TTL},
	})

	masking, err := service.NewMaskingResolver(service.MaskingResolverOptions{
		Source: buildAdminRuleSource(appCfg.Identity, svcLogger),
		Cache:  ruleCache,
		Logger: svcLogger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build masking resolver: %w", err)
	}

	rules, err := depend.Load(appCfg.Report.DependencyRulesPath)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("load dependency rules: %w", err)
	}
	depsSvc, err := service.NewDependencyService(service.DependencyServiceOptions{
		Repo:            opts.Repos.JobRepo,
		Rules:           rules,
		Logger:          svcLogger,
		EstimateMinutes: appCfg.Report.EstimateMinutes,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build dependency service: %w", err)
	}

	return ServiceContainer{
		Reports:       reports,
		Masking:       masking,
		Deps:          depsSvc,
		Inspector:     token.NewInspector(appCfg.Auth.ClientID),
		Minter:        buildMinter(appCfg.Identity, svcLogger),
		CacheRepo:     opts.Repos.CacheRepo,
		JobRepo:       opts.Repos.JobRepo,
		Timesheets:    opts.Repos.TimesheetRepo,
		Observability: opts.Observability,
	}, nil
}

// NewServices wires repositories, observability, and domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
	}
	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(deps)
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// defaultShutdownGrace bounds how long we wait for services to stop when the
// config carries no grace window.
const defaultShutdownGrace = 15 * time.Second

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the admission API if enabled. The oidc
// verifier performs issuer discovery here, so startup fails fast on a bad
// issuer rather than on the first request.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeAPI] {
		return nil, nil
	}

	var authCfg config.AuthConfig
	if deps.cfg.Config != nil {
		authCfg = deps.cfg.Config.Auth
	}
	authn, err := BuildAuthenticator(deps.ctx, AuthConfig{
		Auth:   authCfg,
		Logger: deps.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build authenticator: %w", err)
	}

	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Auth:     authn,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	}), nil
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := descriptor.start(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
		select {
		case deps.errCh <- errMsg:
		case <-ctx.Done():
		default:
			logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newDispatcherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeDispatcher,
		name: "report dispatcher",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			dispatchCfg := config.DispatcherConfig{}
			workerCfg := config.WorkerConfig{}
			if deps.cfg.Config != nil {
				dispatchCfg = deps.cfg.Config.Dispatcher
				workerCfg = deps.cfg.Config.Worker
			}
			return RunDispatcher(ctx, DispatcherConfig{
				Services: deps.cfg.Services,
				Logger:   deps.logger,
				Config:   dispatchCfg,
				Worker:   workerCfg,
			})
		},
	}
}

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "report scheduler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			cronCfg := config.CronConfig{}
			if deps.cfg.Config != nil {
				cronCfg = deps.cfg.Config.Cron
			}
			return RunScheduler(ctx, SchedulerConfig{
				Services: deps.cfg.Services,
				Logger:   deps.logger,
				Config:   cronCfg,
			})
		},
	}
}

func newTestHarnessBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeTestHarness,
		name: "pipeline test harness",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			cronCfg := config.CronConfig{}
			if deps.cfg.Config != nil {
				cronCfg = deps.cfg.Config.Cron
			}
			return RunTestHarness(ctx, SchedulerConfig{
				Services: deps.cfg.Services,
				Logger:   deps.logger,
				Config:   cronCfg,
			})
		},
	}
}

func newRetentionBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRetention,
		name: "retention sweeper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			retentionCfg := config.RetentionConfig{}
			if deps.cfg.Config != nil {
				retentionCfg = deps.cfg.Config.Retention
			}
			return RunRetention(ctx, RetentionRunnerConfig{
				Services: deps.cfg.Services,
				Logger:   deps.logger,
				Config:   retentionCfg,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newDispatcherBackgroundService(deps),
		newSchedulerBackgroundService(deps),
		newTestHarnessBackgroundService(deps),
		newRetentionBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return err
	}

	grace := cfg.Config.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		grace:       grace,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeAPI,
		config.ServiceModeDispatcher,
		config.ServiceModeScheduler,
		config.ServiceModeTestHarness,
		config.ServiceModeRetention,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	grace       time.Duration
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.grace)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.grace, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, grace time.Duration, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(grace):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
