package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/domain/model"
)

func testMeta() Metadata {
	return Metadata{
		ReportID:     "JOB_AB12CD34",
		ReportType:   "DAILY_SUMMARY",
		UserRole:     "CASE_WORKER",
		TargetSystem: "warehouse",
		GeneratedAt:  time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC),
		DataFormat:   model.FormatJSON,
	}
}

func testRecord(id string, fields model.Record) model.MaskedRecord {
	return model.MaskedRecord{
		TimesheetID: id,
		UserRole:    "CASE_WORKER",
		ReportType:  "DAILY_SUMMARY",
		MaskedAt:    time.Date(2026, 2, 14, 9, 30, 1, 0, time.UTC),
		Fields:      fields,
	}
}

func TestJSONWriterDocument(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(model.FormatJSON, &buf)
	require.NoError(t, err)

	require.NoError(t, w.Begin(testMeta()))
	require.NoError(t, w.WriteRecord(testRecord("T-1", model.Record{"hours": 12.5, "providerName": "User 42"})))
	require.NoError(t, w.WriteRecord(testRecord("T-2", model.Record{"hours": 8.0})))
	require.NoError(t, w.End())

	var doc struct {
		ReportID     string               `json:"reportId"`
		ReportType   string               `json:"reportType"`
		UserRole     string               `json:"userRole"`
		TargetSystem string               `json:"targetSystem"`
		GeneratedAt  string               `json:"generatedAt"`
		DataFormat   string               `json:"dataFormat"`
		Data         []model.MaskedRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "JOB_AB12CD34", doc.ReportID)
	assert.Equal(t, "DAILY_SUMMARY", doc.ReportType)
	assert.Equal(t, "CASE_WORKER", doc.UserRole)
	assert.Equal(t, "warehouse", doc.TargetSystem)
	assert.Equal(t, "2026-02-14T09:30:00Z", doc.GeneratedAt)
	assert.Equal(t, "JSON", doc.DataFormat)

	require.Len(t, doc.Data, 2)
	assert.Equal(t, "T-1", doc.Data[0].TimesheetID)
	assert.Equal(t, 12.5, doc.Data[0].Fields["hours"])
	assert.Equal(t, "User 42", doc.Data[0].Fields["providerName"])
	assert.Equal(t, "T-2", doc.Data[1].TimesheetID)
}

func TestJSONWriterEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONWriter(&buf)

	require.NoError(t, w.Begin(testMeta()))
	require.NoError(t, w.End())

	var doc struct {
		Data []model.MaskedRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NotNil(t, doc.Data)
	assert.Empty(t, doc.Data)
	assert.Contains(t, buf.String(), `"data": []`)
}

func TestCSVWriterQuoting(t *testing.T) {
	var buf bytes.Buffer
	w := newCSVWriter(&buf)

	require.NoError(t, w.Begin(testMeta()))
	require.NoError(t, w.WriteRecord(testRecord("T-1", model.Record{
		"note":  `said "stop", then left`,
		"hours": 12.5,
	})))
	require.NoError(t, w.WriteRecord(testRecord("T-2", nil)))
	require.NoError(t, w.End())

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"timesheetId", "userRole", "reportType", "maskedAt", "fields"}, rows[0])
	assert.Equal(t, "T-1", rows[1][0])
	assert.Equal(t, "CASE_WORKER", rows[1][1])
	assert.Equal(t, "2026-02-14T09:30:01Z", rows[1][3])
	assert.Equal(t, `hours:12.5;note:said "stop", then left`, rows[1][4])
	assert.Equal(t, "", rows[2][4])

	// The fields cell carries a comma and quotes, so the raw text must be
	// quoted with inner quotes doubled.
	assert.Contains(t, buf.String(), `"hours:12.5;note:said ""stop"", then left"`)
}

func TestXMLWriterEscapesAndParses(t *testing.T) {
	var buf bytes.Buffer
	w := newXMLWriter(&buf)

	meta := testMeta()
	meta.DataFormat = model.FormatXML
	require.NoError(t, w.Begin(meta))
	require.NoError(t, w.WriteRecord(testRecord("T-<1>", model.Record{
		"note": `Tom & Jerry's "case" <open>`,
	})))
	require.NoError(t, w.End())

	out := buf.String()
	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, "<timesheetId>T-&lt;1&gt;</timesheetId>")
	assert.Contains(t, out, "<note>Tom &amp; Jerry&apos;s &quot;case&quot; &lt;open&gt;</note>")

	// The document must stay well formed end to end.
	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	var doc struct {
		XMLName  xml.Name `xml:"report"`
		Metadata struct {
			ReportID   string `xml:"reportId"`
			DataFormat string `xml:"dataFormat"`
		} `xml:"metadata"`
		Data struct {
			Records []struct {
				TimesheetID string `xml:"timesheetId"`
			} `xml:"record"`
		} `xml:"data"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "JOB_AB12CD34", doc.Metadata.ReportID)
	assert.Equal(t, "XML", doc.Metadata.DataFormat)
	require.Len(t, doc.Data.Records, 1)
	assert.Equal(t, "T-<1>", doc.Data.Records[0].TimesheetID)
}

func TestPDFWriterProducesDocument(t *testing.T) {
	var buf bytes.Buffer
	w := newPDFWriter(&buf)

	meta := testMeta()
	meta.DataFormat = model.FormatPDF
	require.NoError(t, w.Begin(meta))
	require.NoError(t, w.WriteRecord(testRecord("T-1", model.Record{"hours": 12.5})))

	// Nothing is flushed until the document is finalized.
	assert.Zero(t, buf.Len())

	require.NoError(t, w.End())
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestNewWriterUnsupportedFormat(t *testing.T) {
	_, err := NewWriter(model.DataFormat("YAML"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported data format")
}

func TestArtifactPath(t *testing.T) {
	now := time.Date(2026, 2, 14, 9, 30, 5, 0, time.UTC)
	tenant := "CT1"

	adhoc := &model.Job{
		JobID:      "JOB_AB12CD34",
		JobSource:  model.JobSourceAPI,
		ReportType: "DAILY_SUMMARY",
		UserRole:   "CASE_WORKER",
		DataFormat: model.FormatJSON,
		TenantID:   &tenant,
	}
	assert.Equal(t, "reports/report_JOB_AB12CD34_20260214_093005.json", ArtifactPath("reports", adhoc, now))

	scheduled := &model.Job{
		JobID:      "JOB_EF56AB78",
		JobSource:  model.JobSourceScheduled,
		ReportType: "COUNTY_DAILY",
		UserRole:   "SUPERVISOR",
		DataFormat: model.FormatCSV,
		TenantID:   &tenant,
	}
	assert.Equal(t,
		"reports/2026-02-14/CT1/COUNTY_DAILY_CT1_SUPERVISOR_20260214_093005.csv",
		ArtifactPath("reports", scheduled, now))

	scheduled.TenantID = nil
	assert.Equal(t,
		"reports/2026-02-14/ALL/COUNTY_DAILY_ALL_SUPERVISOR_20260214_093005.csv",
		ArtifactPath("reports", scheduled, now))
}

func TestFormatFieldValue(t *testing.T) {
	assert.Equal(t, "", formatFieldValue(nil))
	assert.Equal(t, "12.5", formatFieldValue(12.5))
	assert.Equal(t, "12", formatFieldValue(12.0))
	assert.Equal(t, "7", formatFieldValue(7))
	assert.Equal(t, "true", formatFieldValue(true))
	assert.Equal(t, "plain", formatFieldValue("plain"))
	assert.Equal(t, "2026-02-14T09:30:00Z",
		formatFieldValue(time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)))
}
