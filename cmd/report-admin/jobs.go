package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/caseworks/report-engine/internal/bootstrap"
	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/data"
	"github.com/caseworks/report-engine/internal/domain/model"
)

type jobsListOptions struct {
	Status     *model.JobStatus
	ReportType *string
	UserRole   *string
	JobSource  *model.JobSource
	Limit      int
	Offset     int
}

type jobShowOptions struct {
	JobID string
}

type jobCancelOptions struct {
	JobID string
	Yes   bool
}

func runJobsList(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobsListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, nil); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := newJobRepo(cmdCtx, db)
	jobs, err := repo.List(ctx, &model.JobListOptions{
		Status:     opts.Status,
		ReportType: opts.ReportType,
		UserRole:   opts.UserRole,
		JobSource:  opts.JobSource,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	return printJobList(jobs, opts)
}

func runJobShow(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobShowFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, nil); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	job, err := newJobRepo(cmdCtx, db).GetByID(ctx, opts.JobID)
	if err != nil {
		return err
	}

	return printJobDetails(job)
}

func runJobCancel(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobCancelFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, nil); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := newJobRepo(cmdCtx, db)
	job, err := repo.GetByID(ctx, opts.JobID)
	if err != nil {
		return err
	}

	if job.Status.Terminal() {
		return writef(os.Stdout, "Job %s is already %s; nothing to cancel.\n", job.JobID, job.Status)
	}

	confirmOpts := jobCancelConfirmOptions{
		yes:    opts.Yes,
		target: fmt.Sprintf("job %q (status %s)", job.JobID, job.Status),
	}
	if confirmErr := confirmAction(confirmOpts, "cancel report job"); confirmErr != nil {
		return confirmErr
	}

	ok, err := repo.UpdateStatus(ctx, core.UpdateStatusParams{
		JobID:  job.JobID,
		Status: model.JobStatusCancelled,
	})
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", job.JobID, err)
	}
	if !ok {
		// Lost the race against a terminal transition.
		return writef(os.Stdout, "Job %s can no longer be cancelled; its status changed concurrently.\n", job.JobID)
	}

	cmdCtx.Logger.InfoContext(ctx, "report job cancelled", "job_id", job.JobID, "previous_status", job.Status)
	return writef(os.Stdout, "Job %s cancelled.\n", job.JobID)
}

type jobCancelConfirmOptions struct {
	yes    bool
	target string
}

func (j jobCancelConfirmOptions) IsDryRun() bool    { return false }
func (j jobCancelConfirmOptions) IsYes() bool       { return j.yes }
func (j jobCancelConfirmOptions) GetTarget() string { return j.target }
func (j jobCancelConfirmOptions) GetWarning() string {
	return "WARNING: cancelling a processing job stops its extraction at the next chunk boundary."
}

func newJobRepo(cmdCtx *commandContext, db *sql.DB) *data.ReportJobRepo {
	return data.NewReportJobRepo(db, data.RepoConfig{
		Logger: cmdCtx.Logger,
		Cipher: bootstrap.CreateTokenCipher(cmdCtx.Config.TokenEncKey, cmdCtx.Logger),
	})
}

func parseJobsListFlags(args []string) (jobsListOptions, error) {
	fs := flag.NewFlagSet("jobs-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts       jobsListOptions
		statusFlag string
		typeFlag   string
		roleFlag   string
		sourceFlag string
	)
	fs.StringVar(&statusFlag, "status", "", "Filter by lifecycle status (QUEUED, PROCESSING, COMPLETED, FAILED, CANCELLED)")
	fs.StringVar(&typeFlag, "type", "", "Filter by report type")
	fs.StringVar(&roleFlag, "role", "", "Filter by requesting role")
	fs.StringVar(&sourceFlag, "source", "", "Filter by job source (MANUAL, SCHEDULED, API)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to display")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset for query results")

	if err := fs.Parse(args); err != nil {
		return jobsListOptions{}, err
	}

	if s := strings.TrimSpace(statusFlag); s != "" {
		var status model.JobStatus
		if err := status.UnmarshalText([]byte(s)); err != nil {
			return jobsListOptions{}, fmt.Errorf("--status: %w", err)
		}
		opts.Status = &status
	}
	if s := strings.ToUpper(strings.TrimSpace(typeFlag)); s != "" {
		opts.ReportType = &s
	}
	if s := strings.ToUpper(strings.TrimSpace(roleFlag)); s != "" {
		opts.UserRole = &s
	}
	if s := strings.ToUpper(strings.TrimSpace(sourceFlag)); s != "" {
		source := model.JobSource(s)
		if !source.Valid() {
			return jobsListOptions{}, fmt.Errorf("--source: invalid job source %q", sourceFlag)
		}
		opts.JobSource = &source
	}
	if opts.Limit <= 0 {
		return jobsListOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return jobsListOptions{}, errors.New("--offset must not be negative")
	}

	return opts, nil
}

func parseJobShowFlags(args []string) (jobShowOptions, error) {
	fs := flag.NewFlagSet("job-show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobShowOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to inspect (required)")

	if err := fs.Parse(args); err != nil {
		return jobShowOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return jobShowOptions{}, errors.New("--job-id is required")
	}

	return opts, nil
}

func parseJobCancelFlags(args []string) (jobCancelOptions, error) {
	fs := flag.NewFlagSet("job-cancel", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobCancelOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to cancel (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return jobCancelOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return jobCancelOptions{}, errors.New("--job-id is required")
	}

	return opts, nil
}

func printJobList(jobs []*model.Job, opts jobsListOptions) error {
	if err := writef(os.Stdout, "\nReport jobs (limit %d, offset %d)\n\n", opts.Limit, opts.Offset); err != nil {
		return fmt.Errorf("write jobs header: %w", err)
	}

	if len(jobs) == 0 {
		if err := writeln(os.Stdout, "  (no jobs found)"); err != nil {
			return fmt.Errorf("write jobs empty message: %w", err)
		}
		return nil
	}

	if err := renderJobTable(os.Stdout, jobs); err != nil {
		return err
	}

	if err := writef(os.Stdout, "Jobs shown: %d\n", len(jobs)); err != nil {
		return fmt.Errorf("write jobs total: %w", err)
	}
	if len(jobs) == opts.Limit {
		if err := writeln(os.Stdout, "More jobs may be available; adjust --offset or --limit to view additional rows."); err != nil {
			return fmt.Errorf("write jobs more-rows message: %w", err)
		}
	}
	return nil
}

func renderJobTable(w io.Writer, jobs []*model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tSTATUS\tTYPE\tROLE\tTENANT\tSOURCE\tPROGRESS\tCREATED (UTC)"); err != nil {
		return fmt.Errorf("write jobs header row: %w", err)
	}

	for _, job := range jobs {
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d%%\t%s\n",
			job.JobID,
			job.Status,
			job.ReportType,
			job.UserRole,
			orDash(job.Tenant()),
			job.JobSource,
			job.Progress,
			formatTimestamp(job.CreatedAt),
		); err != nil {
			return fmt.Errorf("write job row: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush jobs table: %w", err)
	}
	return nil
}

func printJobDetails(job *model.Job) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	rows := []struct {
		label string
		value string
	}{
		{"Job ID:", job.JobID},
		{"Status:", string(job.Status)},
		{"Priority:", fmt.Sprintf("%d", job.Priority)},
		{"Source:", string(job.JobSource)},
		{"Report type:", job.ReportType},
		{"Target system:", job.TargetSystem},
		{"Data format:", string(job.DataFormat)},
		{"Chunk size:", fmt.Sprintf("%d", job.ChunkSize)},
		{"User role:", job.UserRole},
		{"Tenant:", orDash(job.Tenant())},
		{"User ID:", formatOptionalString(job.UserID)},
		{"Progress:", fmt.Sprintf("%d%%", job.Progress)},
		{"Records:", formatRecordCounts(job)},
		{"Result path:", formatOptionalString(job.ResultPath)},
		{"Error:", formatOptionalString(job.ErrorMessage)},
		{"Parent job:", formatOptionalString(job.ParentJobID)},
		{"Estimated done:", formatOptionalTime(job.EstimatedCompletionTime)},
		{"Created:", formatTimestamp(job.CreatedAt)},
		{"Started:", formatOptionalTime(job.StartedAt)},
		{"Completed:", formatOptionalTime(job.CompletedAt)},
		{"Updated:", formatTimestamp(job.UpdatedAt)},
	}

	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write job details spacer: %w", err)
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%s\n", row.label, row.value); err != nil {
			return fmt.Errorf("write job detail row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job details: %w", err)
	}

	if len(job.RequestData) > 0 {
		if err := writef(os.Stdout, "\nRequest data:\n%s\n", job.RequestData); err != nil {
			return fmt.Errorf("write job request data: %w", err)
		}
	}
	return nil
}

func formatRecordCounts(job *model.Job) string {
	total := "-"
	if job.TotalRecords != nil {
		total = fmt.Sprintf("%d", *job.TotalRecords)
	}
	return fmt.Sprintf("%d/%s", job.ProcessedRecords, total)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatOptionalString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTimestamp(*t)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
