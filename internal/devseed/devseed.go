// Package devseed populates a development database with deterministic
// timesheet fixtures. Row ids are stable across runs, so reseeding converges
// on the same data instead of accumulating duplicates.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/data"
	"github.com/caseworks/report-engine/internal/domain/model"
)

// DefaultRowsPerCounty is how many timesheet rows each county receives.
const DefaultRowsPerCounty = 500

// serviceDateWindowDays is how far back generated service dates reach from
// the anchor date.
const serviceDateWindowDays = 120

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB            *sql.DB
	timesheets    *data.TimesheetRepo
	rowsPerCounty int
}

// NewServices constructs the repositories used for seeding from the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:            db,
		timesheets:    data.NewTimesheetRepo(db),
		rowsPerCounty: DefaultRowsPerCounty,
	}
}

// WithRowsPerCounty overrides the per-county row count; values below one keep
// the default.
func (s Services) WithRowsPerCounty(n int) Services {
	if n > 0 {
		s.rowsPerCounty = n
	}
	return s
}

// Run executes the seeding workflow against the provided DB. Service dates
// trail the current day so date-range reports have fresh rows to hit.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	anchor := time.Now().UTC().Truncate(24 * time.Hour)
	failures := 0

	for _, county := range model.Counties() {
		rows := GenerateCounty(county, anchor, svcs.rowsPerCounty)
		if err := svcs.timesheets.InsertBatch(ctx, rows); err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed timesheets", "county", county.Code, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			logger.InfoContext(ctx, "seeded timesheets", "county", county.Code, "rows", len(rows))
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

var (
	firstNames = []string{
		"Maria", "James", "Ana", "Robert", "Linda", "Carlos", "Susan",
		"David", "Elena", "Michael", "Rosa", "Thomas",
	}
	lastNames = []string{
		"Garcia", "Nguyen", "Smith", "Hernandez", "Johnson", "Lee",
		"Martinez", "Brown", "Tran", "Wilson", "Lopez", "Kim",
	}
)

// GenerateCounty produces the fixture rows for one county. The same county,
// anchor, and count always yield identical rows: the generator seeds its own
// PRNG from the county code, and row ids derive from the index alone.
func GenerateCounty(county model.County, anchor time.Time, count int) []model.Timesheet {
	if count <= 0 {
		count = DefaultRowsPerCounty
	}
	rng := rand.New(rand.NewSource(countySeed(county.Code))) //nolint:gosec // fixture data, not crypto
	anchor = anchor.UTC().Truncate(24 * time.Hour)

	rows := make([]model.Timesheet, 0, count)
	for i := 0; i < count; i++ {
		provider := pickName(rng)
		recipient := pickName(rng)

		hours := 2 + float64(rng.Intn(41))*0.25
		rate := 16.25 + float64(rng.Intn(8))*0.5
		serviceDate := anchor.AddDate(0, 0, -rng.Intn(serviceDateWindowDays))

		rows = append(rows, model.Timesheet{
			TimesheetID:   fmt.Sprintf("TS_%s_%06d", county.Code, i+1),
			CountyCode:    county.Code,
			CountyName:    county.Name,
			ProviderID:    fmt.Sprintf("PRV%06d", rng.Intn(900000)+100000),
			RecipientID:   fmt.Sprintf("RCP%06d", rng.Intn(900000)+100000),
			ProviderName:  provider,
			ProviderEmail: emailFor(provider),
			RecipientName: recipient,
			WorkedHours:   hours,
			PaymentAmount: math.Round(hours*rate*100) / 100,
			Status:        pickStatus(rng, serviceDate, anchor),
			ServiceDate:   serviceDate,
			CreatedAt:     serviceDate,
		})
	}
	return rows
}

func countySeed(code string) int64 {
	var seed int64
	for _, r := range code {
		seed = seed*31 + int64(r)
	}
	return seed
}

func pickName(rng *rand.Rand) string {
	return firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
}

func emailFor(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@provider.example.gov"
}

// pickStatus skews recent rows toward SUBMITTED and older rows toward the
// settled end of the lifecycle.
func pickStatus(rng *rand.Rand, serviceDate, anchor time.Time) string {
	age := anchor.Sub(serviceDate)
	roll := rng.Float64()

	if age < 14*24*time.Hour {
		switch {
		case roll < 0.55:
			return model.TimesheetSubmitted
		case roll < 0.90:
			return model.TimesheetApproved
		default:
			return model.TimesheetRejected
		}
	}

	switch {
	case roll < 0.70:
		return model.TimesheetPaid
	case roll < 0.92:
		return model.TimesheetApproved
	case roll < 0.97:
		return model.TimesheetSubmitted
	default:
		return model.TimesheetRejected
	}
}
