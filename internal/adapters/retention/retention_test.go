package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/testutil"
)

type captureSink struct {
	counts map[string]int64
	tags   map[string]map[string]string
	gauges map[string]float64
}

func newCaptureSink() *captureSink {
	return &captureSink{
		counts: map[string]int64{},
		tags:   map[string]map[string]string{},
		gauges: map[string]float64{},
	}
}

func (c *captureSink) Count(name string, value int64, tags map[string]string) {
	c.counts[name] += value
	c.tags[name] = tags
}

func (c *captureSink) Gauge(name string, value float64, _ map[string]string) {
	c.gauges[name] = value
}

func (c *captureSink) Timing(string, time.Duration, map[string]string) {}

// failingStore scripts DeleteTerminalBefore failures over a real store.
type failingStore struct {
	*testutil.MemJobStore
	calls int
}

func (s *failingStore) DeleteTerminalBefore(context.Context, core.DeleteTerminalParams) ([]core.DeletedJob, error) {
	s.calls++
	return nil, errors.New("relation report_jobs is locked")
}

func newSweeper(t *testing.T, opts Options) *Sweeper {
	t.Helper()
	s, err := NewSweeper(opts)
	require.NoError(t, err)
	return s
}

func fixedStore() (*testutil.MemJobStore, time.Time) {
	now := testutil.TestTime()
	store := testutil.NewMemJobStore().WithClock(testutil.FixedTimeFunc(now))
	return store, now
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("report data"), 0o600))
	return path
}

func TestSweepOncePurgesExpiredJobs(t *testing.T) {
	store, now := fixedStore()
	dir := t.TempDir()

	oldCSV := writeArtifact(t, dir, "JOB_OLD00001.csv")
	oldPDF := writeArtifact(t, dir, "JOB_OLD00002.pdf")
	freshCSV := writeArtifact(t, dir, "JOB_NEW00001.csv")

	store.Seed(
		testutil.NewJob("JOB_OLD00001").
			WithStatus(model.JobStatusCompleted).
			WithCompletedAt(now.Add(-31*24*time.Hour)).
			WithResultPath(oldCSV).
			Build(),
		testutil.NewJob("JOB_OLD00002").
			WithStatus(model.JobStatusFailed).
			WithCompletedAt(now.Add(-40*24*time.Hour)).
			WithResultPath(oldPDF).
			Build(),
		testutil.NewJob("JOB_OLD00003").
			WithStatus(model.JobStatusCancelled).
			WithCompletedAt(now.Add(-45*24*time.Hour)).
			Build(),
		testutil.NewJob("JOB_NEW00001").
			WithStatus(model.JobStatusCompleted).
			WithCompletedAt(now.Add(-time.Hour)).
			WithResultPath(freshCSV).
			Build(),
		testutil.NewJob("JOB_QUEUED01").
			WithStatus(model.JobStatusQueued).
			WithCreatedAt(now.Add(-60*24*time.Hour)).
			Build(),
	)

	sink := newCaptureSink()
	sweeper := newSweeper(t, Options{
		Repo:    store,
		Metrics: sink,
		MaxAge:  720 * time.Hour,
	})

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	for _, gone := range []string{"JOB_OLD00001", "JOB_OLD00002", "JOB_OLD00003"} {
		_, err := store.GetByID(context.Background(), gone)
		require.Error(t, err, "job %s should be purged", gone)
	}
	for _, kept := range []string{"JOB_NEW00001", "JOB_QUEUED01"} {
		_, err := store.GetByID(context.Background(), kept)
		require.NoError(t, err, "job %s should survive", kept)
	}

	assert.NoFileExists(t, oldCSV)
	assert.NoFileExists(t, oldPDF)
	assert.FileExists(t, freshCSV)

	assert.Equal(t, int64(3), sink.counts["report.retention.jobs_deleted"])
	assert.Equal(t, int64(2), sink.counts["report.retention.files_removed"])
	assert.Zero(t, sink.counts["report.retention.file_errors"])
	assert.Equal(t, int64(1), sink.counts["report.retention.sweep"])
	assert.Equal(t, "success", sink.tags["report.retention.sweep"]["result"])
	assert.Positive(t, sink.gauges["report.retention.last_success_epoch"])
}

func TestSweepOnceBatchesUntilEmpty(t *testing.T) {
	store, now := fixedStore()

	for _, id := range []string{"JOB_BATCH001", "JOB_BATCH002", "JOB_BATCH003"} {
		store.Seed(testutil.NewJob(id).
			WithStatus(model.JobStatusCompleted).
			WithCompletedAt(now.Add(-90 * 24 * time.Hour)).
			Build())
	}

	sink := newCaptureSink()
	sweeper := newSweeper(t, Options{
		Repo:      store,
		Metrics:   sink,
		MaxAge:    720 * time.Hour,
		BatchSize: 1,
	})

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Completed)
	assert.Equal(t, int64(3), sink.counts["report.retention.jobs_deleted"])
}

func TestSweepOnceNoopWhenNothingExpired(t *testing.T) {
	store, now := fixedStore()
	store.Seed(testutil.NewJob("JOB_FRESH001").
		WithStatus(model.JobStatusCompleted).
		WithCompletedAt(now.Add(-time.Hour)).
		Build())

	sink := newCaptureSink()
	sweeper := newSweeper(t, Options{Repo: store, Metrics: sink})

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	assert.Equal(t, int64(1), sink.counts["report.retention.sweep"])
	assert.Equal(t, "noop", sink.tags["report.retention.sweep"]["result"])
	assert.Zero(t, sink.counts["report.retention.jobs_deleted"])
}

func TestSweepOnceToleratesMissingArtifact(t *testing.T) {
	store, now := fixedStore()
	store.Seed(testutil.NewJob("JOB_GONE0001").
		WithStatus(model.JobStatusCompleted).
		WithCompletedAt(now.Add(-32*24*time.Hour)).
		WithResultPath(filepath.Join(t.TempDir(), "never_written.csv")).
		Build())

	sink := newCaptureSink()
	sweeper := newSweeper(t, Options{Repo: store, Metrics: sink})

	require.NoError(t, sweeper.SweepOnce(context.Background()))

	_, err := store.GetByID(context.Background(), "JOB_GONE0001")
	require.Error(t, err)
	assert.Zero(t, sink.counts["report.retention.files_removed"])
	assert.Zero(t, sink.counts["report.retention.file_errors"])
}

func TestSweepOnceCountsFileRemovalFailures(t *testing.T) {
	store, now := fixedStore()
	store.Seed(testutil.NewJob("JOB_STUCK001").
		WithStatus(model.JobStatusFailed).
		WithCompletedAt(now.Add(-32*24*time.Hour)).
		WithResultPath("/var/reports/JOB_STUCK001.pdf").
		Build())

	sink := newCaptureSink()
	sweeper := newSweeper(t, Options{
		Repo:    store,
		Metrics: sink,
		RemoveFile: func(string) error {
			return errors.New("unlink: permission denied")
		},
	})

	// File trouble must not fail the sweep; the row is already gone.
	require.NoError(t, sweeper.SweepOnce(context.Background()))

	_, err := store.GetByID(context.Background(), "JOB_STUCK001")
	require.Error(t, err)
	assert.Equal(t, int64(1), sink.counts["report.retention.jobs_deleted"])
	assert.Equal(t, int64(1), sink.counts["report.retention.file_errors"])
	assert.Equal(t, "success", sink.tags["report.retention.sweep"]["result"])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store, now := fixedStore()
	store.Seed(testutil.NewJob("JOB_RUN00001").
		WithStatus(model.JobStatusCompleted).
		WithCompletedAt(now.Add(-60*24*time.Hour)).
		Build())

	sweeper := newSweeper(t, Options{
		Repo:          store,
		SweepInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sweeper.Run(ctx)
	}()

	// The initial sweep runs right after jitter; give it time to land.
	require.Eventually(t, func() bool {
		_, err := store.GetByID(context.Background(), "JOB_RUN00001")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRunContinuesDespiteSweepErrors(t *testing.T) {
	base, _ := fixedStore()
	store := &failingStore{MemJobStore: base}

	sweeper := newSweeper(t, Options{
		Repo:          store,
		SweepInterval: 30 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := sweeper.Run(ctx)

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, store.calls, 2)
}

func TestNewSweeperValidation(t *testing.T) {
	_, err := NewSweeper(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobRepository is required")
}
