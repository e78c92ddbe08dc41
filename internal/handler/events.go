package handler

import (
	"net/http"
	"time"

	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/internal/scan"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/metrics"
)

// HeartbeatInterval keeps idle SSE connections open through proxies.
const HeartbeatInterval = 30 * time.Second

// EventsHandler streams badge notifications to the extension.
type EventsHandler struct {
	broadcaster *scan.Broadcaster
	heartbeat   time.Duration
	logger      *logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(b *scan.Broadcaster, log *logger.Logger) *EventsHandler {
	return &EventsHandler{broadcaster: b, heartbeat: HeartbeatInterval, logger: log}
}

// Stream handles GET /api/v1/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	// Track active connection
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events, cancel := h.broadcaster.Subscribe(16)
	defer cancel()

	if err := sendSSEEvent(w, flusher, "connected", map[string]string{"status": "ok"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected")
			return

		case ev, open := <-events:
			if !open {
				return
			}
			if err := sendSSEEvent(w, flusher, "badge", ev); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}
