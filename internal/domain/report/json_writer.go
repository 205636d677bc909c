package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// jsonWriter streams a single JSON document: a metadata object whose "data"
// member is an array with one element per record. An empty stream still
// yields a well formed document with an empty data array.
type jsonWriter struct {
	w     io.Writer
	wrote bool
}

func newJSONWriter(w io.Writer) *jsonWriter {
	return &jsonWriter{w: w}
}

func (j *jsonWriter) Begin(meta Metadata) error {
	_, err := fmt.Fprintf(j.w,
		"{\n  \"reportId\": %s,\n  \"reportType\": %s,\n  \"userRole\": %s,\n  \"targetSystem\": %s,\n  \"generatedAt\": %s,\n  \"dataFormat\": %s,\n  \"data\": [",
		jsonString(meta.ReportID),
		jsonString(meta.ReportType),
		jsonString(meta.UserRole),
		jsonString(meta.TargetSystem),
		jsonString(meta.GeneratedAt.UTC().Format(time.RFC3339)),
		jsonString(string(meta.DataFormat)),
	)
	if err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	return nil
}

func (j *jsonWriter) WriteRecord(rec model.MaskedRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	sep := "\n    "
	if j.wrote {
		sep = ",\n    "
	}
	if _, err := fmt.Fprintf(j.w, "%s%s", sep, raw); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	j.wrote = true
	return nil
}

func (j *jsonWriter) End() error {
	closing := "]\n}\n"
	if j.wrote {
		closing = "\n  ]\n}\n"
	}
	if _, err := io.WriteString(j.w, closing); err != nil {
		return fmt.Errorf("write report footer: %w", err)
	}
	return nil
}

func jsonString(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(raw)
}
