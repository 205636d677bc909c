package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caseworks/report-engine/config"
	"github.com/caseworks/report-engine/internal/adapters/cron"
	"github.com/caseworks/report-engine/internal/adapters/dispatch"
	"github.com/caseworks/report-engine/internal/adapters/retention"
	"github.com/caseworks/report-engine/internal/adapters/worker"
	"github.com/caseworks/report-engine/internal/domain/schedule"
)

// DispatcherConfig contains dependencies for the dispatcher runner.
type DispatcherConfig struct {
	Services ServiceContainer
	Logger   *slog.Logger
	Config   config.DispatcherConfig
	Worker   config.WorkerConfig
}

// RunDispatcher claims queued report jobs and executes them on a bounded pool.
func RunDispatcher(ctx context.Context, cfg DispatcherConfig) error {
	runner, err := worker.NewRunner(worker.Options{
		Repo:          cfg.Services.JobRepo,
		Timesheets:    cfg.Services.Timesheets,
		Inspector:     cfg.Services.Inspector,
		Masking:       cfg.Services.Masking,
		Deps:          cfg.Services.Deps,
		Hooks:         cfg.Services.Observability.Hooks,
		Logger:        cfg.Logger,
		Metrics:       cfg.Services.Observability.MetricsSink,
		OutputDir:     cfg.Worker.OutputDir,
		RetryAttempts: cfg.Worker.RetryAttempts,
		RetryBackoff:  cfg.Worker.RetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("create report worker: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Options{
		Repo:           cfg.Services.JobRepo,
		Executor:       runner,
		Logger:         cfg.Logger,
		Metrics:        cfg.Services.Observability.MetricsSink,
		PollInterval:   cfg.Config.PollInterval,
		MaxJobsPerPoll: cfg.Config.MaxJobsPerPoll,
		PoolSize:       cfg.Config.PoolSize,
	})
	if err != nil {
		return fmt.Errorf("create report dispatcher: %w", err)
	}

	return dispatcher.Run(ctx)
}

// SchedulerConfig contains dependencies for the scheduler and harness runners.
type SchedulerConfig struct {
	Services ServiceContainer
	Logger   *slog.Logger
	Config   config.CronConfig
}

// newCronRunner builds the cadence runner shared by the scheduler and the
// test harness. The minter check happens here against the concrete pointer;
// cron.Options holds an interface and would miss a typed nil.
func newCronRunner(cfg SchedulerConfig) (*cron.Runner, error) {
	if cfg.Services.Minter == nil {
		return nil, errors.New("scheduler requires identity-provider minter configuration")
	}

	profiles, err := schedule.LoadProfiles(cfg.Config.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("load schedule profiles: %w", err)
	}

	runner, err := cron.NewRunner(cron.Options{
		Submitter: cfg.Services.Reports,
		Minter:    cfg.Services.Minter,
		Profiles:  profiles,
		Hooks:     cfg.Services.Observability.Hooks,
		Logger:    cfg.Logger,
		Metrics:   cfg.Services.Observability.MetricsSink,
		Cache:     cfg.Services.CacheRepo,
		Harness: cron.HarnessOptions{
			ProfileKey: cfg.Config.HarnessProfile,
			ReportType: cfg.Config.HarnessReportType,
			MaxRuns:    cfg.Config.HarnessMaxRuns,
			Interval:   cfg.Config.HarnessInterval,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create report scheduler: %w", err)
	}
	return runner, nil
}

// RunScheduler fans scheduled report profiles out on their cadences.
func RunScheduler(ctx context.Context, cfg SchedulerConfig) error {
	runner, err := newCronRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// RunTestHarness drives the pipeline end to end on a short interval instead
// of waiting for a real cadence to fire.
func RunTestHarness(ctx context.Context, cfg SchedulerConfig) error {
	runner, err := newCronRunner(cfg)
	if err != nil {
		return err
	}

	if !runner.StartHarness(ctx) {
		return errors.New("test harness has no schedule profile to drive")
	}
	<-ctx.Done()
	runner.StopHarness()
	return ctx.Err()
}

// RetentionRunnerConfig contains dependencies for the retention sweeper.
type RetentionRunnerConfig struct {
	Services ServiceContainer
	Logger   *slog.Logger
	Config   config.RetentionConfig
}

// RunRetention purges expired terminal jobs and their report artifacts.
func RunRetention(ctx context.Context, cfg RetentionRunnerConfig) error {
	sweeper, err := retention.NewSweeper(retention.Options{
		Repo:          cfg.Services.JobRepo,
		Logger:        cfg.Logger,
		Metrics:       cfg.Services.Observability.MetricsSink,
		SweepInterval: cfg.Config.SweepInterval,
		MaxAge:        cfg.Config.MaxAge,
		BatchSize:     cfg.Config.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("create retention sweeper: %w", err)
	}
	return sweeper.Run(ctx)
}
