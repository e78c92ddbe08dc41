package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
)

// AuthChecker asks the backend whether the caller's credential is valid.
type AuthChecker interface {
	ExtensionAuth(ctx context.Context) (bool, error)
}

// AuthHandler reports sign-in state to the extension.
type AuthHandler struct {
	checker AuthChecker
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(checker AuthChecker, log *logger.Logger) *AuthHandler {
	return &AuthHandler{checker: checker, logger: log}
}

// Status handles GET /api/v1/auth. Any failure reads as signed out.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if auth.TokenFromContext(r.Context()) == "" {
		writeJSON(w, http.StatusOK, &model.AuthStatus{IsAuthenticated: false})
		return
	}

	ok, err := h.checker.ExtensionAuth(r.Context())
	if err != nil {
		h.logger.Warn("extension auth check failed", zap.Error(err))
		ok = false
	}
	writeJSON(w, http.StatusOK, &model.AuthStatus{IsAuthenticated: ok})
}
