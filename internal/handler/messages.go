package handler

import (
	"errors"
	"net/http"

	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/middleware"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
)

// MessageHandler handles chat sends.
type MessageHandler struct {
	manager *conversation.Manager
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(manager *conversation.Manager, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		manager: manager,
		logger:  log,
	}
}

// Send handles POST /api/v1/messages. Backend failures show up as a
// synthetic message in the returned transcript, not as an HTTP error.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := h.manager.Get(middleware.GetUserID(r.Context()))
	transcript, err := store.SendMessage(r.Context(), req.Content)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.WithSession(store.UserID(), transcript.SessionID).Error("send failed")
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, transcript)
}
