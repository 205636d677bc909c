package devseed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/domain/model"
)

func TestGenerateCountyIsDeterministic(t *testing.T) {
	county := model.County{Code: "CT1", Name: "Orange"}
	anchor := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	first := GenerateCounty(county, anchor, 50)
	second := GenerateCounty(county, anchor, 50)

	require.Equal(t, first, second)
}

func TestGenerateCountyRowShape(t *testing.T) {
	county := model.County{Code: "CT3", Name: "Alameda"}
	anchor := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rows := GenerateCounty(county, anchor, 200)
	require.Len(t, rows, 200)

	seen := make(map[string]bool, len(rows))
	validStatus := map[string]bool{
		model.TimesheetSubmitted: true,
		model.TimesheetApproved:  true,
		model.TimesheetRejected:  true,
		model.TimesheetPaid:      true,
	}
	windowStart := anchor.AddDate(0, 0, -serviceDateWindowDays)

	for _, row := range rows {
		require.False(t, seen[row.TimesheetID], "duplicate id %s", row.TimesheetID)
		seen[row.TimesheetID] = true

		require.Equal(t, "CT3", row.CountyCode)
		require.Equal(t, "Alameda", row.CountyName)
		require.NotEmpty(t, row.ProviderName)
		require.Contains(t, row.ProviderEmail, "@provider.example.gov")
		require.GreaterOrEqual(t, row.WorkedHours, 2.0)
		require.LessOrEqual(t, row.WorkedHours, 12.0)
		require.Greater(t, row.PaymentAmount, 0.0)
		require.True(t, validStatus[row.Status], "unexpected status %s", row.Status)
		require.False(t, row.ServiceDate.After(anchor))
		require.False(t, row.ServiceDate.Before(windowStart))
	}
}

func TestGenerateCountyIDsIndependentOfAnchor(t *testing.T) {
	county := model.County{Code: "CT2", Name: "Kings"}

	first := GenerateCounty(county, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 10)
	second := GenerateCounty(county, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), 10)

	for i := range first {
		require.Equal(t, first[i].TimesheetID, second[i].TimesheetID)
	}
}

func TestWithRowsPerCountyIgnoresNonPositive(t *testing.T) {
	svcs := Services{rowsPerCounty: DefaultRowsPerCounty}

	require.Equal(t, DefaultRowsPerCounty, svcs.WithRowsPerCounty(0).rowsPerCounty)
	require.Equal(t, DefaultRowsPerCounty, svcs.WithRowsPerCounty(-5).rowsPerCounty)
	require.Equal(t, 25, svcs.WithRowsPerCounty(25).rowsPerCounty)
}
