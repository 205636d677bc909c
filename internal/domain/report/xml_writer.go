package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// xmlEscaper covers the five characters that must not appear raw in
// character data or attribute values.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

type xmlWriter struct {
	w io.Writer
}

func newXMLWriter(w io.Writer) *xmlWriter {
	return &xmlWriter{w: w}
}

func (x *xmlWriter) Begin(meta Metadata) error {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<report>\n  <metadata>\n")
	writeElem(&b, "    ", "reportId", meta.ReportID)
	writeElem(&b, "    ", "reportType", meta.ReportType)
	writeElem(&b, "    ", "userRole", meta.UserRole)
	writeElem(&b, "    ", "targetSystem", meta.TargetSystem)
	writeElem(&b, "    ", "generatedAt", meta.GeneratedAt.UTC().Format(time.RFC3339))
	writeElem(&b, "    ", "dataFormat", string(meta.DataFormat))
	b.WriteString("  </metadata>\n  <data>\n")
	if _, err := io.WriteString(x.w, b.String()); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	return nil
}

func (x *xmlWriter) WriteRecord(rec model.MaskedRecord) error {
	var b strings.Builder
	b.WriteString("    <record>\n")
	writeElem(&b, "      ", "timesheetId", rec.TimesheetID)
	writeElem(&b, "      ", "userRole", rec.UserRole)
	writeElem(&b, "      ", "reportType", rec.ReportType)
	writeElem(&b, "      ", "maskedAt", rec.MaskedAt.UTC().Format(time.RFC3339))
	b.WriteString("      <fields>\n")
	for _, k := range rec.Fields.SortedKeys() {
		writeElem(&b, "        ", k, formatFieldValue(rec.Fields[k]))
	}
	b.WriteString("      </fields>\n    </record>\n")
	if _, err := io.WriteString(x.w, b.String()); err != nil {
		return fmt.Errorf("write xml record: %w", err)
	}
	return nil
}

func (x *xmlWriter) End() error {
	if _, err := io.WriteString(x.w, "  </data>\n</report>\n"); err != nil {
		return fmt.Errorf("write xml footer: %w", err)
	}
	return nil
}

func writeElem(b *strings.Builder, indent, name, value string) {
	b.WriteString(indent)
	b.WriteString("<")
	b.WriteString(name)
	b.WriteString(">")
	b.WriteString(xmlEscaper.Replace(value))
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">\n")
}
