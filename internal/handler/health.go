package handler

import (
	"net/http"

	natsclient "github.com/clausebit/companion/internal/nats"
	"github.com/clausebit/companion/internal/scan"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient  *natsclient.Client
	coordinator *scan.Coordinator
}

// NewHealthHandler creates a new health handler. natsClient is nil when
// NATS is disabled.
func NewHealthHandler(natsClient *natsclient.Client, coordinator *scan.Coordinator) *HealthHandler {
	return &HealthHandler{
		natsClient:  natsClient,
		coordinator: coordinator,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	resp := map[string]interface{}{
		"status": "ready",
	}
	if h.coordinator != nil {
		resp["scan"] = h.coordinator.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
