// Package retention sweeps terminal report jobs past their retention age out
// of the store and unlinks the result files the purged rows referenced.
package retention

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caseworks/report-engine/internal/core"
	obserrors "github.com/caseworks/report-engine/internal/observability/errors"
	"github.com/caseworks/report-engine/internal/observability/metrics"
	"github.com/caseworks/report-engine/internal/observability/statsd"
)

const (
	defaultSweepInterval = time.Hour
	defaultMaxAge        = 720 * time.Hour
	defaultBatchSize     = 1000
)

// sweepLockKey guards the sweep across instances so only one replica deletes.
var sweepLockKey = lockKey("reportengine:retention_sweep")

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// Options configures the sweeper. Repo is required.
type Options struct {
	Repo    core.JobRepository
	Logger  *slog.Logger
	Metrics statsd.Sink

	// SweepInterval is the loop period; defaults to 1h.
	SweepInterval time.Duration
	// MaxAge is the minimum age of a terminal job before it is purged,
	// measured from completion; defaults to 720h.
	MaxAge time.Duration
	// BatchSize caps rows deleted per statement; defaults to 1000.
	BatchSize int

	// RemoveFile overrides result-file removal; defaults to os.Remove.
	RemoveFile func(path string) error
}

// Sweeper deletes expired terminal jobs and their report files on a timer.
type Sweeper struct {
	repo    core.JobRepository
	logger  *slog.Logger
	metrics statsd.Sink

	interval   time.Duration
	maxAge     time.Duration
	batchSize  int
	removeFile func(string) error
}

// NewSweeper constructs a sweeper.
func NewSweeper(opts Options) (*Sweeper, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "retention_sweeper")

	interval := opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	removeFile := opts.RemoveFile
	if removeFile == nil {
		removeFile = os.Remove
	}

	return &Sweeper{
		repo:       opts.Repo,
		logger:     logger,
		metrics:    opts.Metrics,
		interval:   interval,
		maxAge:     maxAge,
		batchSize:  batchSize,
		removeFile: removeFile,
	}, nil
}

// Run executes sweeps at the configured interval until the context is
// cancelled. Returns nil on graceful shutdown (context.Canceled).
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "retention sweeper starting",
		"interval", s.interval,
		"max_age", s.maxAge,
	)

	// Jitter keeps replicas started together from sweeping in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.SweepOnce(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter sleeps up to 10% of the interval before the first sweep.
func (s *Sweeper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "jitter source unavailable, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *Sweeper) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "retention sweeper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logSweepError(err, "sweep")
			}
		}
	}
}

// SweepOnce purges expired terminal jobs under the cross-instance advisory
// lock and removes the result files the purged rows referenced. Exported so
// the admin CLI can trigger a sweep outside the loop.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	start := time.Now()
	var result sweepResult

	err := s.repo.WithAdvisoryLock(ctx, sweepLockKey, func(ctx context.Context) error {
		return s.purgeExpired(ctx, &result)
	})

	result.Elapsed = time.Since(start)
	s.emitSweepMetrics(result, err)

	if err != nil {
		if isContextCancellation(err) {
			return err
		}
		return fmt.Errorf("retention sweep: %w", err)
	}

	if result.Deleted > 0 {
		s.logger.InfoContext(ctx, "retention sweep complete",
			"deleted", result.Deleted,
			"files_removed", result.FilesRemoved,
			"file_errors", result.FileErrors,
			"max_age", s.maxAge,
		)
	}

	return nil
}

// purgeExpired deletes in batches until a batch comes back empty, unlinking
// artifacts as each batch lands so a mid-sweep cancellation leaves no orphan
// files for rows already gone.
func (s *Sweeper) purgeExpired(ctx context.Context, result *sweepResult) error {
	for {
		purged, err := s.repo.DeleteTerminalBefore(ctx, core.DeleteTerminalParams{
			MaxAge:    s.maxAge,
			BatchSize: s.batchSize,
		})
		if err != nil {
			return err
		}
		if len(purged) == 0 {
			return nil
		}

		result.Deleted += int64(len(purged))
		s.removeArtifacts(ctx, purged, result)

		// Check context between batches
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// removeArtifacts unlinks result files for purged rows. A file already gone
// is not an error; other failures are counted and logged but do not fail the
// sweep, the rows are deleted either way.
func (s *Sweeper) removeArtifacts(ctx context.Context, purged []core.DeletedJob, result *sweepResult) {
	for _, row := range purged {
		if row.ResultPath == "" {
			continue
		}
		err := s.removeFile(row.ResultPath)
		switch {
		case err == nil:
			result.FilesRemoved++
		case errors.Is(err, fs.ErrNotExist):
		default:
			result.FileErrors++
			s.logger.WarnContext(ctx, "result file removal failed",
				"job_id", row.JobID,
				"path", row.ResultPath,
				"error", err,
			)
		}
	}
}

type sweepResult struct {
	Deleted      int64
	FilesRemoved int64
	FileErrors   int64
	Elapsed      time.Duration
}

func (s *Sweeper) emitSweepMetrics(result sweepResult, err error) {
	if s.metrics == nil {
		return
	}

	sweepErr := suppressContextCancellation(err)

	outcome := metrics.ResultSuccess
	if sweepErr != nil {
		outcome = metrics.ResultError
	} else if result.Deleted == 0 {
		outcome = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": outcome,
	}
	if sweepErr != nil {
		if class := obserrors.Classify(sweepErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("report.retention.sweep", 1, tags)

	if result.Elapsed > 0 {
		s.metrics.Timing("report.retention.sweep_duration", result.Elapsed, metrics.CloneTags(tags))
	}
	if result.Deleted > 0 {
		s.metrics.Count("report.retention.jobs_deleted", result.Deleted, nil)
	}
	if result.FilesRemoved > 0 {
		s.metrics.Count("report.retention.files_removed", result.FilesRemoved, nil)
	}
	if result.FileErrors > 0 {
		s.metrics.Count("report.retention.file_errors", result.FileErrors, nil)
	}

	if err == nil {
		s.metrics.Gauge("report.retention.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *Sweeper) logSweepError(err error, label string) {
	if err == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
