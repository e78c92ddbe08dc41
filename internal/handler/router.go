package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/middleware"
	natsclient "github.com/clausebit/companion/internal/nats"
	"github.com/clausebit/companion/internal/presenter"
	"github.com/clausebit/companion/internal/scan"
	"github.com/clausebit/companion/pkg/logger"
)

// Deps are the components the router serves.
type Deps struct {
	Conversations *conversation.Manager
	Coordinator   *scan.Coordinator
	Badges        *scan.Badges
	Broadcaster   *scan.Broadcaster
	Presenter     *presenter.Presenter
	AuthChecker   AuthChecker
	Credentials   *auth.Holder
	NATS          *natsclient.Client

	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// RequireAuth rejects navigation and popup requests, which trigger
	// protected backend calls, when no session credential was sent.
	RequireAuth bool
	// Now overrides the clock used for token expiry checks.
	Now         func() time.Time
}

// NewRouter builds the companion HTTP API.
func NewRouter(d Deps, log *logger.Logger) http.Handler {
	healthHandler := NewHealthHandler(d.NATS, d.Coordinator)
	authHandler := NewAuthHandler(d.AuthChecker, log)
	conversationHandler := NewConversationHandler(d.Conversations, log)
	messageHandler := NewMessageHandler(d.Conversations, log)
	tabHandler := NewTabHandler(d.Coordinator, d.Badges, log)
	summaryHandler := NewSummaryHandler(d.Presenter, log)
	eventsHandler := NewEventsHandler(d.Broadcaster, log)

	var protected []func(http.Handler) http.Handler
	if d.RequireAuth {
		protected = append(protected, middleware.RequireCredential)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(d.JWTSecret, d.Credentials, d.Now))
		if d.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(d.RateLimitRequests, d.RateLimitWindow))
		}

		r.Get("/auth", authHandler.Status)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", conversationHandler.Create)
			r.Get("/{sessionID}", conversationHandler.Get)
		})
		r.Get("/transcript", conversationHandler.Transcript)
		r.Post("/messages", messageHandler.Send)

		r.Route("/tabs/{tabID}", func(r chi.Router) {
			r.Delete("/", tabHandler.Close)
			r.With(protected...).Post("/navigation", tabHandler.Navigate)
			r.Get("/badge", tabHandler.Badge)
			r.Delete("/badge", tabHandler.ClearBadge)
		})

		r.Get("/summary", summaryHandler.Cached)
		r.With(protected...).Get("/popup", summaryHandler.Popup)
		r.Get("/events", eventsHandler.Stream)
	})

	return r
}
