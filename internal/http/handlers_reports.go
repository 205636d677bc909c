// Package httpx provides the HTTP admission layer for the report engine:
// enqueue, status, list and cancel endpoints plus health checks. Report
// content itself is never served over HTTP; delivery of finished artifacts
// is out of band.
package httpx

import (
	"errors"
	"net/http"

	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
	"github.com/caseworks/report-engine/internal/service"
)

const maxReportListLimit = 1000

// ReportHandlers provides HTTP handlers for report job operations.
type ReportHandlers struct {
	Svc *service.ReportService
}

// Create handles POST /api/v1/reports: validates the request and enqueues a
// report job for the authenticated caller. Replies 202 since the work happens
// in the background.
func (h *ReportHandlers) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeMissingCaller(w)
		return
	}

	var req model.CreateReportRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), service.SubmitParams{
		Request:     &req,
		Principal:   caller,
		BearerToken: BearerFrom(r.Context()),
		Source:      model.JobSourceAPI,
	})
	if err != nil {
		writeServiceError(w, err, "create_failed")
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// List handles GET /api/v1/reports: jobs visible to the caller, newest first,
// with optional status filtering and pagination.
func (h *ReportHandlers) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeMissingCaller(w)
		return
	}

	limit, offset := ParseLimitOffset(r, 50, maxReportListLimit)
	opts := model.JobListOptions{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.JobStatus(raw)
		if !status.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_status",
				Err:     errors.New("status must be one of QUEUED, PROCESSING, COMPLETED, FAILED, CANCELLED"),
			})
			return
		}
		opts.Status = &status
	}

	jobs, err := h.Svc.List(r.Context(), caller, opts)
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"reports": jobs,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get handles GET /api/v1/reports/{id}: the status projection of a visible
// job. Jobs outside the caller's scope answer 404 so existence never leaks
// across tenants.
func (h *ReportHandlers) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeMissingCaller(w)
		return
	}
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("report id is required")},
		)
		return
	}

	status, err := h.Svc.Status(r.Context(), jobID, caller)
	if err != nil {
		writeServiceError(w, err, "get_failed")
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Cancel handles DELETE /api/v1/reports/{id}: moves a visible non-terminal
// job to CANCELLED. Terminal jobs answer 409.
func (h *ReportHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeMissingCaller(w)
		return
	}
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("report id is required")},
		)
		return
	}

	if err := h.Svc.Cancel(r.Context(), jobID, caller); err != nil {
		writeServiceError(w, err, "cancel_failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeServiceError maps typed service errors onto HTTP statuses; anything
// unclassified is a 500 with the endpoint's fallback code.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidToken, apperrors.ErrCodeMissingClaim:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
	case apperrors.ErrCodeNotFound:
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "report_not_found", Err: err})
	case apperrors.ErrCodeConflict:
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "conflict", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: fallback, Err: err})
	}
}

// writeMissingCaller covers handlers reached without the auth middleware;
// a correctly assembled router never hits this.
func writeMissingCaller(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("no authenticated caller"),
	})
}
