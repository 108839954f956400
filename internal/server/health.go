package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/imghost-io/imghost/internal/objectstore"
)

// healthStatus is the GET /health response body.
type healthStatus struct {
	Status       string            `json:"status"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
}

// handleHealth reports reachability of the metadata store and the object
// store. Any failing dependency turns the overall status to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deps := make(map[string]string, 2)
	healthy := true

	if err := s.meta.Ping(ctx); err != nil {
		deps["database"] = err.Error()
		healthy = false
	} else {
		deps["database"] = "ok"
	}

	// A missing probe object still proves the store answered.
	if _, err := s.obj.Head(ctx, "health-probe"); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		deps["objectStore"] = err.Error()
		healthy = false
	} else {
		deps["objectStore"] = "ok"
	}

	status := healthStatus{
		Status:       "ok",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Dependencies: deps,
	}
	code := http.StatusOK
	if !healthy {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
