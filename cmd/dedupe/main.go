package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/nearby/internal/config"
	"github.com/joshua-takyi/nearby/internal/connect"
	"github.com/joshua-takyi/nearby/internal/logger"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	log := logger.New(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect.InitSupabase(cfg.SupabaseURL, cfg.EventsKey())
	if err != nil {
		log.Error("Failed to connect to Supabase", "error", err)
		return 1
	}
	if cfg.SupabaseServiceRoleKey == "" {
		log.Warn("SUPABASE_SERVICE_ROLE_KEY not set, deletes may be rejected by row level security")
	}
	events := models.SupabaseNewRepo(client, cfg.SupabaseURL, cfg.EventsKey())

	var audit models.DedupeAuditRepo
	mongoClient, err := connect.MongoDBConnect(ctx, cfg)
	if err != nil {
		log.Warn("MongoDB unavailable, run will not be audited", "error", err)
	} else if mongoClient != nil {
		defer func() {
			if err := connect.MongoDBDisconnect(mongoClient); err != nil {
				log.Error("Error disconnecting from MongoDB", "error", err)
			}
		}()
		audit = models.MongodbNewRepo(mongoClient, cfg.MongoDBName)
	}

	res := services.NewDedupeService(events, audit, log).RemoveDuplicates(ctx, "cli")
	fmt.Println(res.Message)
	if !res.Success {
		log.Error("Deduplication failed", "error", res.Error)
		return 1
	}
	return 0
}
