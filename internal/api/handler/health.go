package handler

import (
	"context"
	"net/http"

	"github.com/docpipe/docpipe/internal/api/response"
)

// Pinger is a dependency whose liveness the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. It
// reports degraded with a 503 when the job store or the broker is down.
func NewHealthHandler(jobs, broker Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok", "broker": "ok"}
		healthy := true

		if err := jobs.Ping(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if err := broker.Ping(r.Context()); err != nil {
			checks["broker"] = err.Error()
			healthy = false
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED", "A dependency is unavailable", checks)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "checks": checks})
	}
}
