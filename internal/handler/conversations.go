// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/middleware"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
)

// ConversationHandler serves the dashboard's conversation list and transcript.
type ConversationHandler struct {
	manager *conversation.Manager
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(manager *conversation.Manager, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		manager: manager,
		logger:  log,
	}
}

func (h *ConversationHandler) store(r *http.Request) *conversation.Store {
	return h.manager.Get(middleware.GetUserID(r.Context()))
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.store(r).ListConversations(r.Context())
	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: list,
		Total:         len(list),
	})
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.store(r).StartNewChat())
}

// Get handles GET /api/v1/conversations/{sessionID}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := h.store(r)
	store.LoadConversation(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, store.Current())
}

// Transcript handles GET /api/v1/transcript
func (h *ConversationHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store(r).Current())
}
