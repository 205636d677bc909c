package main

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/domain/model"
)

func testJob() *model.Job {
	tenant := "CT1"
	errMsg := "masking rules unavailable"
	return &model.Job{
		JobID:            "JOB_AB12CD34",
		Status:           model.JobStatusFailed,
		Priority:         50,
		JobSource:        model.JobSourceAPI,
		UserRole:         "CASE_WORKER",
		ReportType:       model.ReportTypeDailySummary,
		TargetSystem:     "CMIPS",
		DataFormat:       model.FormatCSV,
		ChunkSize:        500,
		TenantID:         &tenant,
		Progress:         40,
		ProcessedRecords: 200,
		ErrorMessage:     &errMsg,
		CreatedAt:        time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2025, 6, 1, 8, 45, 0, 0, time.UTC),
	}
}

func TestPrintJobDetailsIncludesErrorAndTenant(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w

	err = printJobDetails(testJob())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Contains(t, outStr, "JOB_AB12CD34")
	require.Contains(t, outStr, "masking rules unavailable")
	require.Contains(t, outStr, "CT1")
	require.Contains(t, outStr, "2025-06-01T08:30:00Z")
	require.Contains(t, outStr, "200/-")
}

func TestRenderJobTableColumns(t *testing.T) {
	var buf bytes.Buffer

	err := renderJobTable(&buf, []*model.Job{testJob()})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "JOB ID")
	require.Contains(t, out, "JOB_AB12CD34")
	require.Contains(t, out, "FAILED")
	require.Contains(t, out, "40%")
	require.Contains(t, out, "CT1")
}

func TestBuildRuleCachePattern(t *testing.T) {
	tests := []struct {
		name string
		opts cacheClearOptions
		want string
	}{
		{
			name: "all roles",
			opts: cacheClearOptions{All: true},
			want: "maskrules:*",
		},
		{
			name: "single role",
			opts: cacheClearOptions{Role: "CASE_WORKER"},
			want: "maskrules:CASE_WORKER:*",
		},
		{
			name: "role and report type",
			opts: cacheClearOptions{Role: "CASE_WORKER", ReportType: "DAILY_SUMMARY"},
			want: "maskrules:CASE_WORKER:DAILY_SUMMARY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, buildRuleCachePattern(tt.opts))
		})
	}
}

func TestParseJobsListFlagsNormalizesStatus(t *testing.T) {
	opts, err := parseJobsListFlags([]string{"--status", "queued", "--type", "daily_summary"})
	require.NoError(t, err)

	require.NotNil(t, opts.Status)
	require.Equal(t, model.JobStatusQueued, *opts.Status)
	require.NotNil(t, opts.ReportType)
	require.Equal(t, "DAILY_SUMMARY", *opts.ReportType)
}

func TestParseJobsListFlagsRejectsInvalidStatus(t *testing.T) {
	_, err := parseJobsListFlags([]string{"--status", "sleeping"})
	require.Error(t, err)
}

func TestParseCacheClearFlagsValidation(t *testing.T) {
	_, err := parseCacheClearFlags(nil)
	require.Error(t, err)

	_, err = parseCacheClearFlags([]string{"--all", "--role", "CASE_WORKER"})
	require.Error(t, err)

	opts, err := parseCacheClearFlags([]string{"--role", "case_worker"})
	require.NoError(t, err)
	require.Equal(t, "CASE_WORKER", opts.Role)
}
