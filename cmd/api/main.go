package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/nearby/internal/config"
	"github.com/joshua-takyi/nearby/internal/connect"
	"github.com/joshua-takyi/nearby/internal/container"
	"github.com/joshua-takyi/nearby/internal/logger"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/routes"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := logger.New(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("Starting nearby API server", "environment", cfg.Environment)

	cld, err := connect.CloudinaryCredentials(cfg)
	if err != nil {
		logger.Error("Failed to connect to Cloudinary", "error", err)
		os.Exit(1)
	}
	if cld == nil {
		logger.Warn("Cloudinary not configured, event images are stored as given")
	}

	// Initialize database connections
	supaClient, err := connect.InitSupabase(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	if err != nil {
		logger.Error("Failed to connect to Supabase", "error", err)
		os.Exit(1)
	}
	eventsClient := supaClient
	if cfg.SupabaseServiceRoleKey != "" {
		if eventsClient, err = connect.InitSupabase(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey); err != nil {
			logger.Error("Failed to create service role client", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Connected to Supabase successfully")

	mongoClient, err := connect.MongoDBConnect(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	if mongoClient == nil {
		logger.Warn("MongoDB not configured, dedupe audit and geocode cache disabled")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := models.MongodbNewRepo(mongoClient, cfg.MongoDBName).EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to create MongoDB indexes", "error", err)
		}
		cancel()
	}

	// Initialize dependency container
	appContainer := container.NewContainer(cfg, logger, cld, supaClient, eventsClient, mongoClient)

	sessionsCtx, stopSessions := context.WithCancel(context.Background())
	sessionsDone := make(chan struct{})
	go func() {
		appContainer.Sessions.Run(sessionsCtx)
		close(sessionsDone)
	}()

	// Setup routes
	router := routes.SetupRoutes(appContainer)

	// Create HTTP server. GET /location may wait up to the geolocation
	// timeout, so writes get more room than reads.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	stopSessions()
	<-sessionsDone
	appContainer.Tokens.Close()

	// Close database connections
	if err := connect.MongoDBDisconnect(mongoClient); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}

	logger.Info("Server exited")
}
