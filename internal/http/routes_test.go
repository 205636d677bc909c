package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/service"
	"github.com/caseworks/report-engine/internal/testutil"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := service.MustNewReportService(service.ReportServiceOptions{
		Repo: testutil.NewMemJobStore(),
	})
	return NewRouter(RouterServices{
		Reports: svc,
		Auth: &stubAuthenticator{
			principal: auth.Principal{UserID: "worker-1", Role: auth.RoleCaseWorker, TenantID: "CT1"},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRouter_HealthzSkipsAuth(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRouter_ReportsRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/reports",
		strings.NewReader(`{"reportType":"DAILY_SUMMARY","dataFormat":"JSON"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "authentication_required", envelope["error"])
}

// TestRouter_ReportLifecycle drives submit, poll and cancel through the full
// middleware chain.
func TestRouter_ReportLifecycle(t *testing.T) {
	router := newTestRouter(t)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var rd io.Reader
		if body != "" {
			rd = strings.NewReader(body)
		}
		r := httptest.NewRequest(method, path, rd)
		r.Header.Set("Authorization", "Bearer router-test-token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	w := do(http.MethodPost, "/api/v1/reports",
		`{"reportType":"DAILY_SUMMARY","targetSystem":"CMIPS","dataFormat":"CSV"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var created model.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)

	w = do(http.MethodGet, "/api/v1/reports/"+created.JobID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status model.JobStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, model.JobStatusQueued, status.Status)

	w = do(http.MethodGet, "/api/v1/reports?status=QUEUED", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Reports []*model.Job `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Reports, 1)

	w = do(http.MethodDelete, "/api/v1/reports/"+created.JobID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(http.MethodGet, "/api/v1/reports/"+created.JobID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, model.JobStatusCancelled, status.Status)
}
