package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clausebit/companion/internal/middleware"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/internal/scan"
	"github.com/clausebit/companion/pkg/logger"
)

// TabHandler receives tab lifecycle events from the extension.
type TabHandler struct {
	coordinator *scan.Coordinator
	badges      *scan.Badges
	logger      *logger.Logger
}

// NewTabHandler creates a new tab handler.
func NewTabHandler(coordinator *scan.Coordinator, badges *scan.Badges, log *logger.Logger) *TabHandler {
	return &TabHandler{
		coordinator: coordinator,
		badges:      badges,
		logger:      log,
	}
}

func tabID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "tabID")
	if err := middleware.ValidateTabID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// Navigate handles POST /api/v1/tabs/{tabID}/navigation
func (h *TabHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	id, ok := tabID(w, r)
	if !ok {
		return
	}

	var req model.NavigationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	origin, err := h.coordinator.Navigate(r.Context(), id, req.URL)
	if errors.Is(err, scan.ErrUnsupportedURL) {
		// Browser-internal pages are not scanned.
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"tab_id": id, "tracked": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record navigation")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"tab_id":  id,
		"origin":  origin,
		"tracked": true,
	})
}

// Close handles DELETE /api/v1/tabs/{tabID}
func (h *TabHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := tabID(w, r)
	if !ok {
		return
	}
	h.coordinator.CloseTab(id)
	w.WriteHeader(http.StatusNoContent)
}

// Badge handles GET /api/v1/tabs/{tabID}/badge
func (h *TabHandler) Badge(w http.ResponseWriter, r *http.Request) {
	id, ok := tabID(w, r)
	if !ok {
		return
	}
	ev, raised := h.badges.Get(id)
	if !raised {
		writeJSON(w, http.StatusOK, &model.BadgeEvent{TabID: id})
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ClearBadge handles DELETE /api/v1/tabs/{tabID}/badge
func (h *TabHandler) ClearBadge(w http.ResponseWriter, r *http.Request) {
	id, ok := tabID(w, r)
	if !ok {
		return
	}
	h.badges.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}
