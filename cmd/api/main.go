// Package main is the entry point for the companion API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/backend"
	"github.com/clausebit/companion/internal/cache"
	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/config"
	"github.com/clausebit/companion/internal/conversation"
	"github.com/clausebit/companion/internal/handler"
	natsclient "github.com/clausebit/companion/internal/nats"
	"github.com/clausebit/companion/internal/presenter"
	"github.com/clausebit/companion/internal/scan"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "companion: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting companion server", zap.String("backend_url", cfg.BackendURL), zap.String("cache", cfg.CacheBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "clausebit-companion", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Connect to NATS when configured
	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()
	}

	store, closeStore, err := openCache(ctx, cfg, natsClient)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := backend.New(cfg.BackendURL, cfg.BackendTimeout, log)
	if err != nil {
		return err
	}

	clk := clock.Real()
	reconciler := cache.NewReconciler(store, clk)
	holder := auth.NewHolder()
	badges := scan.NewBadges()
	broadcaster := scan.NewBroadcaster()

	notifiers := []scan.Notifier{badges, broadcaster}
	if natsClient != nil {
		notifiers = append(notifiers, natsclient.NewBadgePublisher(natsClient))
	}

	scanOpts := scan.Options{
		QuietPeriod: cfg.QuietPeriod,
		Clock:       clk,
		CallTimeout: cfg.BackendTimeout,
	}
	if cfg.RequireAuth {
		scanOpts.Credentials = holder
	}
	coordinator := scan.NewCoordinator(client, reconciler, scanOpts, log, notifiers...)
	defer coordinator.Close()

	if natsClient != nil {
		if _, err := natsclient.SubscribeTabEvents(ctx, natsClient, coordinator.HandleEvent); err != nil {
			return err
		}
	}

	popupOpts := presenter.Options{
		Clock:        clk,
		RefreshDelay: cfg.PopupRefreshDelay,
		FetchTimeout: cfg.BackendTimeout,
		Badges:       badges,
	}
	if cfg.RequireAuth {
		popupOpts.Credentials = holder
	}
	popup := presenter.New(client, reconciler, popupOpts, log)

	conversations := conversation.NewManager(client, conversation.Options{
		Clock:            clk,
		ListRefreshDelay: cfg.ListRefreshDelay,
	}, log)

	router := handler.NewRouter(handler.Deps{
		Conversations:     conversations,
		Coordinator:       coordinator,
		Badges:            badges,
		Broadcaster:       broadcaster,
		Presenter:         popup,
		AuthChecker:       client,
		Credentials:       holder,
		NATS:              natsClient,
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		RequireAuth:       cfg.RequireAuth,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// openCache selects the summary store named by CACHE_BACKEND.
func openCache(ctx context.Context, cfg *config.Config, nc *natsclient.Client) (cache.Store, func(), error) {
	noop := func() {}
	switch cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryStore(), noop, nil
	case config.CacheNATS:
		if nc == nil {
			return nil, noop, errors.New("nats cache requires NATS_URL")
		}
		s, err := natsclient.OpenSummaryStore(ctx, nc)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	default:
		s, err := cache.OpenSQLite(ctx, cfg.CachePath)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { closeQuietly(s) }, nil
	}
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
