package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// pdfWriter accumulates records and renders the whole document during End.
// PDF is not a streamable format, so unlike the text writers nothing reaches
// the underlying writer until the final chunk has been processed.
type pdfWriter struct {
	w    io.Writer
	meta Metadata
	recs []model.MaskedRecord
}

func newPDFWriter(w io.Writer) *pdfWriter {
	return &pdfWriter{w: w}
}

func (p *pdfWriter) Begin(meta Metadata) error {
	p.meta = meta
	return nil
}

func (p *pdfWriter) WriteRecord(rec model.MaskedRecord) error {
	p.recs = append(p.recs, rec)
	return nil
}

func (p *pdfWriter) End() error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s Report", p.meta.ReportType), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	header := []string{
		"Report ID: " + p.meta.ReportID,
		"Role: " + p.meta.UserRole,
		"Target system: " + p.meta.TargetSystem,
		"Generated: " + p.meta.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for _, line := range header {
		pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	for i, rec := range p.recs {
		pdf.SetFont("Arial", "B", 9)
		title := fmt.Sprintf("%d. %s (%s)", i+1, rec.TimesheetID, rec.MaskedAt.UTC().Format(time.RFC3339))
		pdf.CellFormat(0, 5, title, "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		for _, k := range rec.Fields.SortedKeys() {
			pdf.MultiCell(0, 5, fmt.Sprintf("%s: %s", k, formatFieldValue(rec.Fields[k])), "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, fmt.Sprintf("%d records", len(p.recs)), "", 1, "L", false, 0, "")

	if err := pdf.Output(p.w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
