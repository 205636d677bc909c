// Package report contains the format writers that stream extraction output
// to disk, and the artifact path layout.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// stampLayout is the UTC timestamp embedded in artifact file names.
const stampLayout = "20060102_150405"

// Metadata describes the report; writers stamp it into their headers.
type Metadata struct {
	ReportID     string
	ReportType   string
	UserRole     string
	TargetSystem string
	GeneratedAt  time.Time
	DataFormat   model.DataFormat
}

// Writer emits one report artifact. Begin writes the format header,
// WriteRecord emits one row, End writes the footer and flushes. The PDF
// writer collects records and renders everything during End.
type Writer interface {
	Begin(meta Metadata) error
	WriteRecord(rec model.MaskedRecord) error
	End() error
}

// NewWriter returns the streaming writer for the format, emitting into w.
func NewWriter(format model.DataFormat, w io.Writer) (Writer, error) {
	switch format {
	case model.FormatJSON:
		return newJSONWriter(w), nil
	case model.FormatCSV:
		return newCSVWriter(w), nil
	case model.FormatXML:
		return newXMLWriter(w), nil
	case model.FormatPDF:
		return newPDFWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported data format %q", string(format))
	}
}

// ArtifactPath computes the output path for a job's artifact. Ad-hoc jobs
// land flat under the base directory; scheduled jobs are organized per date
// and tenant for the delivery sidecars.
func ArtifactPath(baseDir string, job *model.Job, now time.Time) string {
	utc := now.UTC()
	ext := job.DataFormat.Ext()

	if job.JobSource == model.JobSourceScheduled {
		county := job.Tenant()
		if county == "" {
			county = model.TenantAll
		}
		name := fmt.Sprintf("%s_%s_%s_%s.%s", job.ReportType, county, job.UserRole, utc.Format(stampLayout), ext)
		return filepath.Join(baseDir, utc.Format("2006-01-02"), county, name)
	}

	name := fmt.Sprintf("report_%s_%s.%s", job.JobID, utc.Format(stampLayout), ext)
	return filepath.Join(baseDir, name)
}

// formatFieldValue renders a field value for the text formats. Floats drop
// trailing zeros so CSV and XML cells match the JSON number rendering.
func formatFieldValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
