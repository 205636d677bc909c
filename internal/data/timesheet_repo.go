package data

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/data/database"
	"github.com/caseworks/report-engine/internal/data/pgxutil"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/domain/plan"
	apperrors "github.com/caseworks/report-engine/internal/errors"
	"github.com/jackc/pgx/v5"
)

// fetchDefaultLimit bounds a Fetch whose caller passed no page size.
const fetchDefaultLimit = 1000

// TimesheetRepo reads extraction pages from the timesheets table. It binds
// the closed predicate set of a query plan; nothing caller-controlled ever
// reaches the SQL text.
type TimesheetRepo struct {
	DB *sql.DB
}

var _ core.TimesheetRepository = (*TimesheetRepo)(nil)

// NewTimesheetRepo creates a new TimesheetRepo with the given database
// connection.
func NewTimesheetRepo(db *sql.DB) *TimesheetRepo {
	return &TimesheetRepo{DB: db}
}

func timesheetColumns() []string {
	return []string{
		"timesheet_id", "county_code", "county_name", "provider_id",
		"recipient_id", "provider_name", "provider_email", "recipient_name",
		"worked_hours", "payment_amount", "status", "service_date",
		"created_at",
	}
}

// filterColumnFor maps allowlisted request filters to their storage columns.
var filterColumnFor = map[string]string{
	"status":      "status",
	"providerId":  "provider_id",
	"recipientId": "recipient_id",
}

// Fetch returns one page of rows for the plan, ordered by (serviceDate,
// timesheetId) so repeated offset reads walk a stable sequence.
func (r *TimesheetRepo) Fetch(ctx context.Context, params core.FetchParams) ([]model.Record, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = fetchDefaultLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	queryOpts := append(planConditions(params.Plan),
		database.WithColumns(timesheetColumns()...),
		database.WithOrderBy("service_date", "ASC"),
		database.WithOrderBy("timesheet_id", "ASC"),
		database.WithLimit(limit),
		database.WithOffset(int(offset)),
	)
	query, args := database.BuildListQuery(database.NewListQueryOptions("timesheets", queryOpts...))

	var rows []model.Timesheet
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		pgxRows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer pgxRows.Close()

		vals, err := pgx.CollectRows(pgxRows, pgx.RowToStructByName[model.Timesheet])
		if err != nil {
			return err
		}
		rows = vals
		return nil
	}); err != nil {
		return nil, fmt.Errorf("fetch timesheets: %w", apperrors.MapDBError(err))
	}

	records := make([]model.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].Record()
	}
	return records, nil
}

// Count returns the total row count for the plan's predicate.
func (r *TimesheetRepo) Count(ctx context.Context, p plan.QueryPlan) (int64, error) {
	queryOpts := append(planConditions(p), database.WithCountOnly())
	query, args := database.BuildListQuery(database.NewListQueryOptions("timesheets", queryOpts...))

	var total int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count timesheets: %w", apperrors.MapDBError(err))
	}
	return total, nil
}

// planConditions translates the plan's predicates into builder conditions.
// The tenant predicate binds to county_code; dates bind as calendar-date
// strings so the DATE column compares without timezone involvement.
func planConditions(p plan.QueryPlan) []database.ListQueryOption {
	var queryOpts []database.ListQueryOption

	if p.TenantID != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond("county_code", database.Equal, p.TenantID),
		))
	}
	if p.OwnerColumn != plan.OwnerNone && p.OwnerID != "" {
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond(string(p.OwnerColumn), database.Equal, p.OwnerID),
		))
	}
	if p.DateRange != nil {
		queryOpts = append(queryOpts,
			database.WithCondition(database.WhereCond(
				"service_date", database.GreaterThanOrEqual, p.DateRange.Start.Format("2006-01-02"))),
			database.WithCondition(database.WhereCond(
				"service_date", database.LessThanOrEqual, p.DateRange.End.Format("2006-01-02"))),
		)
	}

	// Iterate filters in sorted key order so the generated SQL is stable.
	keys := make([]string, 0, len(p.Filters))
	for key := range p.Filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		column, ok := filterColumnFor[key]
		if !ok {
			continue
		}
		queryOpts = append(queryOpts, database.WithCondition(
			database.WhereCond(column, database.Equal, p.Filters[key]),
		))
	}

	return queryOpts
}

// InsertBatch writes timesheet rows in one transaction. Existing ids are
// replaced, so reseeding a development database converges instead of
// conflicting.
func (r *TimesheetRepo) InsertBatch(ctx context.Context, rows []model.Timesheet) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO timesheets (
			timesheet_id, county_code, county_name, provider_id, recipient_id,
			provider_name, provider_email, recipient_name, worked_hours,
			payment_amount, status, service_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (timesheet_id) DO UPDATE SET
			county_code = EXCLUDED.county_code,
			county_name = EXCLUDED.county_name,
			provider_id = EXCLUDED.provider_id,
			recipient_id = EXCLUDED.recipient_id,
			provider_name = EXCLUDED.provider_name,
			provider_email = EXCLUDED.provider_email,
			recipient_name = EXCLUDED.recipient_name,
			worked_hours = EXCLUDED.worked_hours,
			payment_amount = EXCLUDED.payment_amount,
			status = EXCLUDED.status,
			service_date = EXCLUDED.service_date
	`

	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, row := range rows {
				batch.Queue(query,
					row.TimesheetID, row.CountyCode, row.CountyName,
					row.ProviderID, row.RecipientID, row.ProviderName,
					row.ProviderEmail, row.RecipientName, row.WorkedHours,
					row.PaymentAmount, row.Status, row.ServiceDate,
					row.CreatedAt,
				)
			}
			return tx.SendBatch(ctx, batch).Close()
		},
	})
	if err != nil {
		return fmt.Errorf("insert timesheets: %w", apperrors.MapDBError(err))
	}
	return nil
}
