package model

// JobListOptions groups parameters for listing jobs with optional filters.
type JobListOptions struct {
	Status     *JobStatus // Optional filter by lifecycle status
	UserRole   *string    // Optional filter by requesting role
	ReportType *string    // Optional filter by report type
	JobSource  *JobSource // Optional filter by origin
	Limit      int        // Pagination limit
	Offset     int        // Pagination offset
}

// DependentLookup groups parameters for the fan-in duplicate check: an
// existing job of ReportType whose parent is one of ParentJobIDs.
type DependentLookup struct {
	ParentJobIDs []string
	ReportType   string
}
