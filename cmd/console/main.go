// Persona Console - local front end for the interview-agent API.
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

	"github.com/309dot/persona-console/internal/api"
	"github.com/309dot/persona-console/internal/apiclient"
	"github.com/309dot/persona-console/internal/config"
	"github.com/309dot/persona-console/internal/conversation"
	"github.com/309dot/persona-console/internal/history"
	"github.com/309dot/persona-console/internal/middleware"
	"github.com/309dot/persona-console/internal/quota"
	"github.com/309dot/persona-console/internal/reveal"
	"github.com/309dot/persona-console/internal/session"
	"github.com/309dot/persona-console/internal/store"
	"github.com/309dot/persona-console/web"
)

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

	slog.Info("Starting console", "port", cfg.Port, "api", cfg.APIBaseURL, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize local state database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Local state health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Local state database connected")

	sessions := session.NewStore(repo)
	hist := history.NewStore(repo, cfg.GreetingText)
	tracker := quota.NewTracker(cfg.QuotaTotal)
	engine := reveal.New(cfg.RevealInterval)
	client := apiclient.New(cfg.APIBaseURL, cfg.RequestTimeout)

	ctrl := conversation.NewController(sessions, hist, tracker, client, engine, conversation.Options{
		OutOfScopeText:          cfg.OutOfScopeText,
		RetryNoticeText:         cfg.RetryNoticeText,
		QuotaResetOnVisitorEdit: cfg.QuotaResetOnVisitorEdit,
	})

	handler := api.NewHandler(ctrl, client, hist)
	chatStream := api.NewChatStreamHandler(ctrl, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))

	handler.RegisterRoutes(r)
	r.Get("/ws/chat", chatStream.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // reveal frames stream over long-lived connections
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Console listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Console stopped")
}
