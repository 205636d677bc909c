package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/data/pgxutil"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/jackc/pgx/v5"
)

// ReportJobRepo provides Postgres-backed persistence for report jobs. Every
// lifecycle write is a single-statement compare-and-set, so claim races and
// repeated completions resolve inside the database without client locks.
type ReportJobRepo struct {
	DB           *sql.DB
	cipher       *TokenCipher
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.JobRepository = (*ReportJobRepo)(nil)

// RepoConfig holds configuration options for the report job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
	Cipher       *TokenCipher
}

// NewReportJobRepo creates a new ReportJobRepo with the given database
// connection and configuration.
func NewReportJobRepo(db *sql.DB, cfg RepoConfig) *ReportJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &ReportJobRepo{
		DB:           db,
		cipher:       cfg.Cipher,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// reportJobColumns is the canonical column set in model.Job db-tag order.
// Every SELECT and RETURNING uses it so struct collection stays aligned.
func reportJobColumns() []string {
	return []string{
		"job_id", "status", "priority", "job_source", "user_role",
		"report_type", "target_system", "data_format", "chunk_size",
		"tenant_id", "user_id", "request_data", "bearer_token", "progress",
		"total_records", "processed_records", "result_path", "error_message",
		"parent_job_id", "estimated_completion_time", "created_at",
		"started_at", "completed_at", "updated_at",
	}
}

var reportJobColumnList = strings.Join(reportJobColumns(), ", ")

// getByQuery runs a query expected to produce at most one job row.
// pgx.ErrNoRows passes through for callers that treat absence specially.
func (r *ReportJobRepo) getByQuery(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var job *model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		job, err = pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.Job])
		return err
	}); err != nil {
		return nil, err
	}
	return r.openToken(job)
}

// listByQuery runs a query producing any number of job rows.
func (r *ReportJobRepo) listByQuery(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	var jobs []*model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		if err != nil {
			return err
		}
		jobs = vals
		return nil
	}); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if _, err := r.openToken(job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// openToken swaps a stored bearer token for its plaintext in place. Rows
// written before encryption was enabled pass through untouched.
func (r *ReportJobRepo) openToken(job *model.Job) (*model.Job, error) {
	if job == nil {
		return nil, nil
	}
	token, err := r.cipher.Open(job.BearerToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt bearer token for job %s: %w", job.JobID, err)
	}
	job.BearerToken = token
	return job, nil
}
