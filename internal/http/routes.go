package httpx

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/caseworks/report-engine/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Reports *service.ReportService
	Auth    TokenAuthenticator
	// DB backs the readiness probe. Optional; readyz answers ok without it.
	DB     *sql.DB
	Logger *slog.Logger
}

// NewRouter creates and configures the admission API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	registerReportRoutes(mux, &ReportHandlers{Svc: services.Reports}, services.Auth)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyzHandler(services.DB))

	// Recover sits innermost so a panic's 500 still shows up in the access
	// log with its request id.
	var handler http.Handler = Recover(logger)(mux)
	handler = Logging(logger)(handler)
	return RequestID()(handler)
}

func registerReportRoutes(mux *http.ServeMux, h *ReportHandlers, authn TokenAuthenticator) {
	requireAuth := RequireBearer(authn)
	mux.Handle("POST /api/v1/reports", requireAuth(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/v1/reports", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/v1/reports/{id}", requireAuth(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /api/v1/reports/{id}", requireAuth(http.HandlerFunc(h.Cancel)))
}
