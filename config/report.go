package config

// ReportConfig contains report pipeline configuration shared by admission and
// the worker.
type ReportConfig struct {
	// DefaultChunkSize is used when a request does not set its own.
	DefaultChunkSize int `env:"REPORT_DEFAULT_CHUNK_SIZE" envDefault:"1000"`

	// EstimateMinutes maps report types to completion estimates surfaced on
	// enqueue, e.g. "DAILY_SUMMARY:10,QUARTERLY_SUMMARY:45". Types without an
	// entry fall back to the service default.
	EstimateMinutes map[string]int `env:"REPORT_ESTIMATE_MINUTES" envSeparator:"," envKeyValSeparator:":"`

	// DependencyRulesPath points at the YAML dependency rules. Empty disables
	// dependent report fan-out.
	DependencyRulesPath string `env:"DEPENDENCY_RULES_PATH" envDefault:""`
}

// Sanitize applies guardrails to report configuration values.
func (r *ReportConfig) Sanitize() {
	if r.DefaultChunkSize < 1 {
		r.DefaultChunkSize = 1000
	}
	for reportType, minutes := range r.EstimateMinutes {
		if minutes < 1 {
			delete(r.EstimateMinutes, reportType)
		}
	}
}
