package cron

import (
	"context"
	"time"

	"github.com/caseworks/report-engine/internal/domain/schedule"
	"github.com/caseworks/report-engine/internal/observability/metrics"
)

// StartHarness activates the fixed-rate pipeline driver. It reports true when
// the driver is ticking after the call, and false when the run budget is
// spent (ResetHarness rearms it) or no profile is available to drive.
func (r *Runner) StartHarness(ctx context.Context) bool {
	if _, ok := r.harnessSeed(); !ok {
		return false
	}
	if !r.harness.Start() {
		return r.harness.Running()
	}
	go r.harnessLoop(ctx)
	return true
}

// StopHarness deactivates the driver without clearing the run counter.
func (r *Runner) StopHarness() {
	r.harness.Stop()
}

// ResetHarness stops the driver and clears the run counter.
func (r *Runner) ResetHarness() {
	r.harness.Reset()
}

// HarnessStatus reports how many runs the driver has emitted and whether it
// is currently active.
func (r *Runner) HarnessStatus() (runs int, running bool) {
	return r.harness.Runs(), r.harness.Running()
}

func (r *Runner) harnessLoop(ctx context.Context) {
	for {
		if !r.harness.Next() {
			return
		}
		r.runHarnessOnce(ctx)

		timer := time.NewTimer(r.harnessOpts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.harness.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) runHarnessOnce(ctx context.Context) {
	seed, ok := r.harnessSeed()
	if !ok {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "harness has no profile to drive")
		}
		r.harness.Stop()
		return
	}

	job, err := r.emitSeed(ctx, schedule.CadenceTest, seed)
	if err != nil {
		metrics.EmitCronBatch(r.metrics, string(schedule.CadenceTest), seed.ProfileKey, 0, 1)
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "harness run failed",
				"profile", seed.ProfileKey,
				"report_type", seed.ReportType,
				"error", err,
			)
		}
		return
	}

	metrics.EmitCronBatch(r.metrics, string(schedule.CadenceTest), seed.ProfileKey, 1, 0)
	if r.logger != nil {
		r.logger.InfoContext(ctx, "harness run enqueued",
			"profile", seed.ProfileKey,
			"job_id", job.JobID,
			"runs", r.harness.Runs(),
		)
	}
}

// harnessSeed resolves the configured (profile, reportType) pair to a single
// seed over the test window. Unset options fall back to the first profile and
// its first report type; multi-county profiles drive their first county.
func (r *Runner) harnessSeed() (schedule.Seed, bool) {
	profile, ok := r.harnessProfile()
	if !ok {
		return schedule.Seed{}, false
	}

	window, err := schedule.Window(schedule.CadenceTest, r.clock())
	if err != nil {
		return schedule.Seed{}, false
	}

	reportType := r.harnessOpts.ReportType
	for _, seed := range profile.Expand(window) {
		if reportType == "" || seed.ReportType == reportType {
			return seed, true
		}
	}
	return schedule.Seed{}, false
}

func (r *Runner) harnessProfile() (schedule.Profile, bool) {
	if len(r.profiles) == 0 {
		return schedule.Profile{}, false
	}
	if r.harnessOpts.ProfileKey == "" {
		return r.profiles[0], true
	}
	for _, p := range r.profiles {
		if p.Key == r.harnessOpts.ProfileKey {
			return p, true
		}
	}
	return schedule.Profile{}, false
}
