// Hacklab Agent - pentest lab mentor server
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

	"github.com/ashureev/hacklab-agent/internal/agent"
	"github.com/ashureev/hacklab-agent/internal/api"
	"github.com/ashureev/hacklab-agent/internal/config"
	"github.com/ashureev/hacklab-agent/internal/identity"
	"github.com/ashureev/hacklab-agent/internal/middleware"
	"github.com/ashureev/hacklab-agent/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
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
	slog.Info("Database connected", "path", cfg.DBPath)

	// Initialize the chat service (optional).
	var chatService *agent.Service
	if cfg.ChatEnabled() {
		model, err := agent.NewOllamaModel(agent.OllamaConfig{
			BaseURL:     cfg.Chat.BaseURL,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		})
		if err != nil {
			slog.Error("Failed to initialize model client", "error", err)
			os.Exit(1)
		}
		chatService = agent.NewService(repo, model, agent.ServiceConfig{
			HistoryLimit:  cfg.Chat.HistoryLimit,
			MaxToolRounds: cfg.Chat.MaxToolRounds,
			ToolTimeout:   cfg.Chat.ToolTimeout,
		})
		slog.Info("Chat service initialized", "model", cfg.Chat.Model, "base_url", cfg.Chat.BaseURL)
	} else {
		slog.Info("Chat disabled (OLLAMA_BASE_URL not set)")
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)
	sessionHandler := api.NewSessionHandler(baseHandler)
	messageHandler := api.NewMessageHandler(baseHandler)
	contextHandler := api.NewContextHandler(baseHandler)
	activityHandler := api.NewActivityHandler(baseHandler)
	chatHandler := api.NewChatHandler(baseHandler, chatService)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	sessionHandler.RegisterRoutes(r)
	messageHandler.RegisterRoutes(r)
	contextHandler.RegisterRoutes(r)
	activityHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)

	// Create server. Chat turns can take a while against a local model, so
	// the write timeout stays generous.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
