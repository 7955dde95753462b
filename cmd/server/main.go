// NEON SPIRE - document Q&A web client
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/neonspire/docqa/internal/api"
	"github.com/neonspire/docqa/internal/chat"
	"github.com/neonspire/docqa/internal/config"
	"github.com/neonspire/docqa/internal/health"
	"github.com/neonspire/docqa/internal/identity"
	"github.com/neonspire/docqa/internal/live"
	"github.com/neonspire/docqa/internal/middleware"
	"github.com/neonspire/docqa/internal/qaclient"
	"github.com/neonspire/docqa/internal/store"
	"github.com/neonspire/docqa/web"
)

func openRepository(cfg *config.Config) (store.Repository, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return store.NewMemory(), nil
	}
	return store.NewSQLite(cfg.DBPath)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"backend_url", cfg.BackendURL,
		"page_required", cfg.AskRequirePage,
		"store", cfg.StoreDriver,
	)

	repo, err := openRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected")

	renderer, err := web.NewRenderer()
	if err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	transcript, err := chat.NewTranscriptLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	hub := live.NewHub(renderer)
	backend := qaclient.New(cfg.BackendURL, cfg.BackendTimeout)
	chatService := chat.NewService(repo, backend, hub, transcript, chat.Options{
		RequirePage: cfg.AskRequirePage,
		AskTimeout:  cfg.BackendTimeout,
	})
	defer chatService.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize handlers.
	sessionHandler := api.NewHandler(chatService, renderer, cfg.MaxUploadBytes)
	healthHandler := health.NewHandler(map[string]health.Pinger{"store": repo})
	wsHandler := live.NewHandler(hub, chatService, cfg.FrontendURL, cfg.IsDevelopment())
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	limit := middleware.RateLimit(limiter, func(r *http.Request) string {
		return identity.SessionIDFromContext(r.Context())
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	// Public routes.
	healthHandler.Register(r)
	r.Handle("/static/*", web.StaticHandler())

	// Session routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(chatService, cfg.IsDevelopment()))
		sessionHandler.RegisterRoutes(r, limit)
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	// Note: WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	chat.StartTTLWorker(ctx, repo, cfg.SessionTTL, func(sessionID string) {
		hub.CloseSession(sessionID)
		chatService.Forget(sessionID)
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
