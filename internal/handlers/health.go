package handlers

import (
	"net/http"
	"time"

	"github.com/designdesk/api/internal/platform/httpx"
	"github.com/designdesk/api/internal/repositories"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	datastore repositories.HealthRepository
}

// NewHealthHandlers constructs health handlers. A nil datastore probe makes
// /readyz succeed unconditionally.
func NewHealthHandlers(datastore repositories.HealthRepository) *HealthHandlers {
	return &HealthHandlers{datastore: datastore}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports readiness, including datastore connectivity when configured.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.datastore != nil {
		if err := h.datastore.Check(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("datastore_unavailable", "datastore connectivity check failed", http.StatusServiceUnavailable))
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}
