package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/middleware"
	"github.com/clausebit/companion/internal/presenter"
	"github.com/clausebit/companion/internal/scan"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/metrics"
)

// SummaryHandler serves the popup's risk summary.
type SummaryHandler struct {
	presenter *presenter.Presenter
	logger    *logger.Logger
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(p *presenter.Presenter, log *logger.Logger) *SummaryHandler {
	return &SummaryHandler{presenter: p, logger: log}
}

// RenderEvent is one popup paint sent over SSE.
type RenderEvent struct {
	View presenter.View `json:"view"`
	HTML string         `json:"html,omitempty"`
}

// Cached handles GET /api/v1/summary?url=
func (h *SummaryHandler) Cached(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if err := middleware.ValidateURL(rawURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.presenter.Cached(r.Context(), rawURL)
	if errors.Is(err, scan.ErrUnsupportedURL) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read summary")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Popup handles GET /api/v1/popup?tab=&url=&format=json|html. It streams
// a render event for the cached state, another after the refresh, then done.
func (h *SummaryHandler) Popup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tab, rawURL, format := q.Get("tab"), q.Get("url"), q.Get("format")

	if err := middleware.ValidateTabID(tab); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateURL(rawURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if format != "" && format != presenter.FormatJSON && format != presenter.FormatHTML {
		writeError(w, http.StatusBadRequest, "format must be json or html")
		return
	}
	if _, err := scan.NormalizeOrigin(rawURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	renderer := presenter.RendererFunc(func(_ context.Context, v presenter.View) error {
		ev := RenderEvent{View: v}
		if format == presenter.FormatHTML {
			var buf bytes.Buffer
			if err := presenter.WriteHTML(&buf, v); err != nil {
				return err
			}
			ev.HTML = buf.String()
		}
		return sendSSEEvent(w, flusher, "render", ev)
	})

	view, err := h.presenter.Open(r.Context(), tab, rawURL, renderer)
	if err != nil {
		if r.Context().Err() == nil {
			h.logger.Error("popup render failed", zap.String("tab_id", tab), zap.Error(err))
		}
		return
	}

	_ = sendSSEEvent(w, flusher, "done", map[string]interface{}{
		"origin":     view.Origin,
		"provenance": view.Provenance,
		"notice":     view.Notice,
	})
}
