package depend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/domain/model"
)

const sampleRules = `
dependencies:
  - name: weekly-after-daily
    parentReportType: DAILY_SUMMARY
    parentRole: CASE_WORKER
    dependentReportType: WEEKLY_SUMMARY
    dependentPriority: 20
  - parentReportTypes: [COUNTY_DAILY, DAILY_SUMMARY]
    parentRole: CASE_WORKER
    dependentReportType: COMPOSITE_ROLLUP
    dependentDataFormat: csv
    dependentChunkSize: 500
profiles:
  - key: ignored-by-this-package
`

func TestParseRules(t *testing.T) {
	set, err := Parse([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, set.Rules, 2)

	single := set.Rules[0]
	assert.False(t, single.FanIn())
	assert.Equal(t, []string{"DAILY_SUMMARY"}, single.ParentTypes())
	assert.Equal(t, model.JobStatusCompleted, single.Trigger())
	assert.Equal(t, "weekly-after-daily", single.Key())
	require.NotNil(t, single.DependentPriority)
	assert.Equal(t, 20, *single.DependentPriority)

	fanIn := set.Rules[1]
	assert.True(t, fanIn.FanIn())
	assert.Equal(t, []string{"COUNTY_DAILY", "DAILY_SUMMARY"}, fanIn.ParentTypes())
	assert.Equal(t, "COUNTY_DAILY+DAILY_SUMMARY>COMPOSITE_ROLLUP", fanIn.Key())
	require.NotNil(t, fanIn.DependentChunkSize)
	assert.Equal(t, 500, *fanIn.DependentChunkSize)
}

func TestRuleMatches(t *testing.T) {
	set, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	matches := set.MatchesFor("DAILY_SUMMARY", "CASE_WORKER", model.JobStatusCompleted)
	require.Len(t, matches, 2)

	// Wrong role, wrong status, unlisted type all miss.
	assert.Empty(t, set.MatchesFor("DAILY_SUMMARY", "SUPERVISOR", model.JobStatusCompleted))
	assert.Empty(t, set.MatchesFor("DAILY_SUMMARY", "CASE_WORKER", model.JobStatusFailed))
	assert.Empty(t, set.MatchesFor("YEARLY_AUDIT", "CASE_WORKER", model.JobStatusCompleted))

	only := set.MatchesFor("COUNTY_DAILY", "CASE_WORKER", model.JobStatusCompleted)
	require.Len(t, only, 1)
	assert.Equal(t, "COMPOSITE_ROLLUP", only[0].DependentReportType)
}

func TestRuleValidate(t *testing.T) {
	cases := []struct {
		name string
		rule Rule
		want string
	}{
		{
			name: "both parent forms",
			rule: Rule{ParentReportType: "A", ParentReportTypes: []string{"B"}, DependentReportType: "C"},
			want: "both",
		},
		{
			name: "no parent",
			rule: Rule{DependentReportType: "C"},
			want: "needs parentReportType",
		},
		{
			name: "no dependent",
			rule: Rule{ParentReportType: "A"},
			want: "no dependentReportType",
		},
		{
			name: "unknown trigger",
			rule: Rule{ParentReportType: "A", DependentReportType: "C", TriggerOn: "DONE"},
			want: "triggerOn",
		},
		{
			name: "unknown format",
			rule: Rule{ParentReportType: "A", DependentReportType: "C", DependentDataFormat: "YAML"},
			want: "dependentDataFormat",
		},
		{
			name: "priority out of range",
			rule: Rule{ParentReportType: "A", DependentReportType: "C", DependentPriority: intPtr(101)},
			want: "out of range",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	ok := Rule{ParentReportType: "A", DependentReportType: "C", TriggerOn: "completed"}
	require.NoError(t, ok.Validate())
	assert.Equal(t, model.JobStatusCompleted, ok.Trigger())
}

func TestParseRejectsCycles(t *testing.T) {
	cyclic := `
dependencies:
  - parentReportType: DAILY_SUMMARY
    dependentReportType: WEEKLY_SUMMARY
  - parentReportType: WEEKLY_SUMMARY
    dependentReportType: DAILY_SUMMARY
`
	_, err := Parse([]byte(cyclic))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
	assert.Contains(t, err.Error(), "DAILY_SUMMARY")

	selfLoop := `
dependencies:
  - parentReportType: DAILY_SUMMARY
    dependentReportType: DAILY_SUMMARY
`
	_, err = Parse([]byte(selfLoop))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	fanInCycle := `
dependencies:
  - parentReportTypes: [COUNTY_DAILY, DAILY_SUMMARY]
    dependentReportType: COMPOSITE_ROLLUP
  - parentReportType: COMPOSITE_ROLLUP
    dependentReportType: COUNTY_DAILY
`
	_, err = Parse([]byte(fanInCycle))
	require.Error(t, err)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, set.Empty())
}

func intPtr(v int) *int { return &v }
