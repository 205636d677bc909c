package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// csvHeader is the fixed column set. Masked fields collapse into a single
// "fields" column of key:value pairs so the column count stays stable across
// report types.
var csvHeader = []string{"timesheetId", "userRole", "reportType", "maskedAt", "fields"}

type csvWriter struct {
	cw *csv.Writer
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{cw: csv.NewWriter(w)}
}

func (c *csvWriter) Begin(Metadata) error {
	if err := c.cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	c.cw.Flush()
	return c.cw.Error()
}

func (c *csvWriter) WriteRecord(rec model.MaskedRecord) error {
	row := []string{
		rec.TimesheetID,
		rec.UserRole,
		rec.ReportType,
		rec.MaskedAt.UTC().Format(time.RFC3339),
		flattenFields(rec.Fields),
	}
	if err := c.cw.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.cw.Flush()
	return c.cw.Error()
}

func (c *csvWriter) End() error {
	c.cw.Flush()
	return c.cw.Error()
}

// flattenFields renders the field map as key:value pairs joined by
// semicolons, keys sorted for a stable column.
func flattenFields(fields model.Record) string {
	keys := fields.SortedKeys()
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+":"+formatFieldValue(fields[k]))
	}
	return strings.Join(pairs, ";")
}
