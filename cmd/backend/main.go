// NEON SPIRE - document Q&A backend
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/neonspire/docqa/internal/blob"
	"github.com/neonspire/docqa/internal/config"
	"github.com/neonspire/docqa/internal/docqa"
	"github.com/neonspire/docqa/internal/health"
	"github.com/neonspire/docqa/internal/llm"
	"github.com/neonspire/docqa/internal/middleware"
	"github.com/neonspire/docqa/internal/pdftext"
	"github.com/neonspire/docqa/internal/qaapi"
	"github.com/neonspire/docqa/internal/store"
)

func openBlobStore(cfg *config.BackendConfig) (blob.Store, error) {
	switch cfg.BlobStore {
	case config.BlobS3:
		return blob.NewS3Store(cfg.S3)
	case config.BlobMemory:
		return blob.NewMemoryStore(), nil
	case config.BlobFS:
		return blob.NewFileStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown blob store %q", cfg.BlobStore)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadBackend()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting backend",
		"port", cfg.Port,
		"blob_store", cfg.BlobStore,
		"llm_base_url", cfg.LLM.BaseURL,
		"llm_model", cfg.LLM.Model,
	)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	blobs, err := openBlobStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	docs, err := store.NewCachedDocuments(repo, cfg.PageCacheSize)
	if err != nil {
		slog.Error("Failed to initialize page cache", "error", err)
		os.Exit(1)
	}

	svc := docqa.NewService(blobs, pdftext.PlainText{}, docs, llm.NewOpenAICompleter(cfg.LLM))
	checks := map[string]health.Pinger{"store": repo}
	if s3, ok := blobs.(*blob.S3Store); ok {
		checks["blob"] = s3
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	health.NewHandler(checks).Register(r)
	qaapi.NewHandler(svc, cfg.MaxUploadBytes).RegisterRoutes(r)

	// Completions can take minutes on CPU, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Backend forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Backend stopped successfully")
}
