package model

import (
	"sort"
	"time"
)

// Record is one extracted timesheet row as a named field map. Keys are the
// camelCase field names masking rules refer to.
type Record map[string]any

// TimesheetID returns the row's timesheet identifier, or "" when absent
// (e.g. after a HIDDEN_ACCESS rule dropped it).
func (r Record) TimesheetID() string {
	if v, ok := r["timesheetId"].(string); ok {
		return v
	}
	return ""
}

// SortedKeys returns the field names in lexical order. Writers rely on this
// for deterministic output.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MaskedRecord is a row after masking, stamped with the job context the
// format writers emit alongside the fields.
type MaskedRecord struct {
	TimesheetID string    `json:"timesheetId"`
	UserRole    string    `json:"userRole"`
	ReportType  string    `json:"reportType"`
	MaskedAt    time.Time `json:"maskedAt"`
	Fields      Record    `json:"fields"`
}
