// Package cron fans scheduled report profiles out into queued jobs. Each
// cadence registers one cron entry; a firing expands every enabled profile
// into per-county seeds, mints a service token per seed identity, and admits
// the jobs with jobSource SCHEDULED. When a cache is wired, a window-dated
// claim key lets exactly one replica fan each firing out. A bounded
// fixed-rate harness drives the same path for pipeline verification.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/domain/schedule"
	"github.com/caseworks/report-engine/internal/observability/metrics"
	"github.com/caseworks/report-engine/internal/observability/notify"
	"github.com/caseworks/report-engine/internal/observability/statsd"
	"github.com/caseworks/report-engine/internal/service"
	"github.com/caseworks/report-engine/internal/service/hooks"
)

// Metadata keys stamped onto scheduled request data.
const (
	metaCadence = "cadence"
	metaProfile = "profile"
)

// DefaultHarnessInterval spaces harness firings when no override is set.
const DefaultHarnessInterval = 2 * time.Minute

// fanOutLockTTL keeps claim keys alive across replica clock skew. The keys
// carry the window date and never repeat, so the TTL is only hygiene.
const fanOutLockTTL = 6 * time.Hour

// Submitter admits a report request on behalf of a principal. The report
// service satisfies this.
type Submitter interface {
	Submit(ctx context.Context, p service.SubmitParams) (*model.Job, error)
}

// HarnessOptions selects what the pipeline test harness emits per firing.
type HarnessOptions struct {
	ProfileKey string        // Optional: defaults to the first profile
	ReportType string        // Optional: defaults to the profile's first type
	MaxRuns    int           // Optional: defaults to schedule.DefaultHarnessRuns
	Interval   time.Duration // Optional: defaults to DefaultHarnessInterval
}

// Options groups dependencies for Runner.
type Options struct {
	Submitter Submitter          // Required: report admission
	Minter    core.TokenMinter   // Required: per-identity service tokens
	Profiles  []schedule.Profile // Profiles to fan out
	Hooks     *hooks.Service     // Optional: batch summary notifications
	Logger    *slog.Logger       // Optional: structured logger
	Metrics   statsd.Sink        // Optional: metrics sink
	// Cache dedups cadence firings across scheduler replicas. Without it
	// every replica fans out.
	Cache core.CacheRepository
	// Specs overrides the cron expression per cadence.
	Specs   map[schedule.Cadence]string
	Harness HarnessOptions
	Clock   func() time.Time // Optional: override for tests
}

// Runner owns the cadence registry and the test harness.
type Runner struct {
	submitter Submitter
	minter    core.TokenMinter
	profiles  []schedule.Profile
	hooks     *hooks.Service
	logger    *slog.Logger
	metrics   statsd.Sink
	cache     core.CacheRepository
	specs     map[schedule.Cadence]string
	clock     func() time.Time

	harnessOpts HarnessOptions
	harness     *schedule.HarnessState
}

// NewRunner constructs a new cron Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Submitter == nil {
		return nil, errors.New("Submitter is required")
	}
	if opts.Minter == nil {
		return nil, errors.New("TokenMinter is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "report_cron")
	}

	if opts.Harness.Interval <= 0 {
		opts.Harness.Interval = DefaultHarnessInterval
	}

	return &Runner{
		submitter:   opts.Submitter,
		minter:      opts.Minter,
		profiles:    opts.Profiles,
		hooks:       opts.Hooks,
		logger:      logger,
		metrics:     opts.Metrics,
		cache:       opts.Cache,
		specs:       opts.Specs,
		clock:       clock,
		harnessOpts: opts.Harness,
		harness:     schedule.NewHarnessState(opts.Harness.MaxRuns),
	}, nil
}

// Run registers every production cadence and blocks until the context ends.
// Firings in flight are drained before returning.
func (r *Runner) Run(ctx context.Context) error {
	registry := cron.New(cron.WithLocation(time.UTC))

	for _, cadence := range schedule.Cadences() {
		spec := r.specFor(cadence)
		c := cadence
		if _, err := registry.AddFunc(spec, func() { r.FanOut(ctx, c) }); err != nil {
			return fmt.Errorf("register %s cadence %q: %w", cadence, spec, err)
		}
		if r.logger != nil {
			r.logger.InfoContext(ctx, "cadence registered",
				"cadence", cadence,
				"spec", spec,
			)
		}
	}

	registry.Start()
	<-ctx.Done()

	// Stop accepts no new firings; the returned context closes once running
	// ones finish.
	<-registry.Stop().Done()
	if r.logger != nil {
		r.logger.InfoContext(ctx, "report cron stopped")
	}
	return ctx.Err()
}

func (r *Runner) specFor(cadence schedule.Cadence) string {
	if spec, ok := r.specs[cadence]; ok && spec != "" {
		return spec
	}
	return cadence.DefaultSpec()
}

// claimFiring takes the window's claim key so only one scheduler replica
// fans the cadence out. Without a cache every firing proceeds.
func (r *Runner) claimFiring(ctx context.Context, cadence schedule.Cadence, window model.DateRange) bool {
	if r.cache == nil {
		return true
	}

	key := fmt.Sprintf("schedule:lock:%s:%s", cadence, window.Start.UTC().Format("2006-01-02"))
	stamp := []byte(r.clock().UTC().Format(time.RFC3339))

	won, err := r.cache.SetIfNotExists(ctx, key, stamp, fanOutLockTTL)
	if err != nil {
		// Guard errors fall open: a duplicate batch beats a skipped one.
		if r.logger != nil {
			r.logger.WarnContext(ctx, "cadence claim check failed",
				"cadence", cadence,
				"error", err,
			)
		}
		return true
	}
	return won
}

// BatchResult summarises one cadence firing across all enabled profiles.
type BatchResult struct {
	Cadence   schedule.Cadence
	Total     int
	Succeeded int
	Failed    int
}

// FanOut expands every profile enabled for the cadence and enqueues the
// resulting jobs. Seed failures are counted and logged; the batch continues.
func (r *Runner) FanOut(ctx context.Context, cadence schedule.Cadence) BatchResult {
	result := BatchResult{Cadence: cadence}

	window, err := schedule.Window(cadence, r.clock())
	if err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "cadence window computation failed",
				"cadence", cadence,
				"error", err,
			)
		}
		return result
	}

	if !r.claimFiring(ctx, cadence, window) {
		if r.logger != nil {
			r.logger.InfoContext(ctx, "cadence already claimed by another replica",
				"cadence", cadence,
			)
		}
		return result
	}

	for _, profile := range r.profiles {
		if !profile.EnabledFor(cadence) {
			continue
		}
		succeeded, failed := r.fanOutProfile(ctx, cadence, profile, window)
		result.Total += succeeded + failed
		result.Succeeded += succeeded
		result.Failed += failed
	}

	if r.logger != nil && result.Total > 0 {
		r.logger.InfoContext(ctx, "cron batch complete",
			"cadence", cadence,
			"total", result.Total,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
		)
	}
	return result
}

// fanOutProfile runs one profile's seeds and emits its batch summary.
func (r *Runner) fanOutProfile(
	ctx context.Context,
	cadence schedule.Cadence,
	profile schedule.Profile,
	window model.DateRange,
) (succeeded, failed int) {
	started := r.clock().UTC()
	seeds := profile.Expand(window)

	for _, seed := range seeds {
		if _, err := r.emitSeed(ctx, cadence, seed); err != nil {
			failed++
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "cron seed enqueue failed",
					"cadence", cadence,
					"profile", seed.ProfileKey,
					"report_type", seed.ReportType,
					"county", seed.County,
					"error", err,
				)
			}
			continue
		}
		succeeded++
	}

	metrics.EmitCronBatch(r.metrics, string(cadence), profile.Key, succeeded, failed)

	if r.hooks != nil && len(seeds) > 0 {
		r.hooks.NotifyBatchSummary(ctx, notify.BatchSummaryPayload{
			Cadence:    string(cadence),
			ProfileKey: profile.Key,
			Total:      succeeded + failed,
			Succeeded:  succeeded,
			Failed:     failed,
			StartedAt:  started,
			FinishedAt: r.clock().UTC(),
		})
	}
	return succeeded, failed
}

// emitSeed mints the seed's service token and admits one scheduled job.
func (r *Runner) emitSeed(ctx context.Context, cadence schedule.Cadence, seed schedule.Seed) (*model.Job, error) {
	username := seed.CronUsername()
	bearer, err := r.minter.Mint(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("mint token for %s: %w", username, err)
	}

	window := seed.Window
	req := &model.CreateReportRequest{
		ReportType:   seed.ReportType,
		TargetSystem: seed.TargetSystem,
		DataFormat:   seed.DataFormat,
		ChunkSize:    seed.ChunkSize,
		Priority:     seed.Priority,
		TenantID:     seed.County,
		DateRange:    &window,
		Metadata: map[string]string{
			metaCadence: string(cadence),
			metaProfile: seed.ProfileKey,
		},
	}

	job, err := r.submitter.Submit(ctx, service.SubmitParams{
		Request: req,
		Principal: auth.Principal{
			UserID:   username,
			Role:     auth.Role(seed.Role),
			TenantID: seed.County,
		},
		BearerToken: bearer,
		Source:      model.JobSourceScheduled,
	})
	if err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "scheduled job enqueued",
			"cadence", cadence,
			"profile", seed.ProfileKey,
			"job_id", job.JobID,
			"report_type", job.ReportType,
			"county", seed.County,
		)
	}
	return job, nil
}
