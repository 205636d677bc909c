package httpx

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok","service":"report-engine"}`

const readyProbeTimeout = 2 * time.Second

// healthHandler answers liveness probes. HEAD gets the status line only.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// readyzHandler reports readiness by pinging the job store. A database that
// does not answer within the probe timeout yields 503 so load balancers stop
// routing admissions here.
func readyzHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "not_ready",
					Err:     err,
				})
				return
			}
		}
		healthHandler(w, r)
	}
}
