// Package dispatch polls the job store for queued report jobs, claims them,
// and hands each claim to a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/observability/metrics"
	"github.com/caseworks/report-engine/internal/observability/statsd"
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultMaxJobsPerPoll = 10
	defaultPoolSize       = 2
)

// Executor runs one claimed job to a terminal state. The worker runner
// satisfies this; it never returns because failures are recorded on the job.
type Executor interface {
	Execute(ctx context.Context, job *model.Job)
}

// Options configures the dispatcher. Repo and Executor are required.
type Options struct {
	Repo     core.JobRepository
	Executor Executor
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// PollInterval is the tick period; defaults to 5s.
	PollInterval time.Duration
	// MaxJobsPerPoll caps claims per tick before the free-slot bound applies;
	// defaults to 10.
	MaxJobsPerPoll int
	// PoolSize bounds concurrently executing jobs; defaults to 2.
	PoolSize int
	// Disabled makes Run a no-op so the polling loop can be switched off
	// without rewiring bootstrap.
	Disabled bool
}

// Dispatcher owns the polling loop and the slot-bounded pool.
type Dispatcher struct {
	repo    core.JobRepository
	exec    Executor
	logger  *slog.Logger
	metrics statsd.Sink

	interval   time.Duration
	maxPerPoll int
	disabled   bool

	slots chan struct{}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("Executor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "report_dispatcher")

	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxPerPoll := opts.MaxJobsPerPoll
	if maxPerPoll <= 0 {
		maxPerPoll = defaultMaxJobsPerPoll
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	return &Dispatcher{
		repo:       opts.Repo,
		exec:       opts.Executor,
		logger:     logger,
		metrics:    opts.Metrics,
		interval:   interval,
		maxPerPoll: maxPerPoll,
		disabled:   opts.Disabled,
		slots:      make(chan struct{}, poolSize),
	}, nil
}

// Run polls until the context is cancelled, then drains in-flight jobs.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.disabled {
		d.logger.InfoContext(ctx, "dispatcher disabled")
		return nil
	}

	d.logger.InfoContext(ctx, "starting report dispatcher",
		"poll_interval", d.interval,
		"pool_size", cap(d.slots),
		"max_jobs_per_poll", d.maxPerPoll,
	)

	var group errgroup.Group
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.tick(ctx, &group)
	for {
		select {
		case <-ctx.Done():
			if err := group.Wait(); err != nil {
				d.logger.ErrorContext(ctx, "worker pool drain", "error", err)
			}
			d.logger.InfoContext(ctx, "dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx, &group)
		}
	}
}

// tick claims up to min(maxPerPoll, free slots) queued jobs and submits each
// to the pool. It never blocks on pool saturation: jobs it cannot seat stay
// QUEUED for the next tick.
func (d *Dispatcher) tick(ctx context.Context, group *errgroup.Group) {
	free := cap(d.slots) - len(d.slots)
	if free == 0 {
		return
	}
	limit := d.maxPerPoll
	if free < limit {
		limit = free
	}

	batch, err := d.repo.TopQueued(ctx, limit)
	if err != nil {
		d.logger.ErrorContext(ctx, "poll queued jobs", "error", err)
		return
	}
	metrics.EmitQueueDepth(d.metrics, len(batch))
	if len(batch) == 0 {
		return
	}

	for _, queued := range batch {
		select {
		case d.slots <- struct{}{}:
		default:
			return
		}

		claimed, err := d.repo.Claim(ctx, queued.JobID)
		if err != nil {
			<-d.slots
			d.logger.ErrorContext(ctx, "claim job", "job_id", queued.JobID, "error", err)
			continue
		}
		if claimed == nil {
			// Lost the claim race; another dispatcher owns it now.
			<-d.slots
			continue
		}

		d.logger.InfoContext(ctx, "job claimed",
			"job_id", claimed.JobID,
			"report_type", claimed.ReportType,
			"user_role", claimed.UserRole,
			"priority", claimed.Priority,
		)
		group.Go(func() error {
			defer func() { <-d.slots }()
			d.exec.Execute(ctx, claimed)
			return nil
		})
	}
}
