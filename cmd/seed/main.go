package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/nearby/internal/config"
	"github.com/joshua-takyi/nearby/internal/connect"
	"github.com/joshua-takyi/nearby/internal/container"
	"github.com/joshua-takyi/nearby/internal/logger"
	"github.com/joshua-takyi/nearby/internal/seed"
)

func main() {
	os.Exit(run())
}

func run() int {
	file := flag.String("file", "events.json", "JSON array of event records to import")
	normalizeDates := flag.Bool("normalize-dates", false, "store dates that parse as ISO timestamps")
	dryRun := flag.Bool("dry-run", false, "geocode and log without inserting")
	flag.Parse()

	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	log := logger.New(cfg, os.Stderr)

	f, err := os.Open(*file)
	if err != nil {
		log.Error("Failed to open seed file", "file", *file, "error", err)
		return 1
	}
	records, err := seed.ReadRecords(f)
	f.Close()
	if err != nil {
		log.Error("Failed to read seed file", "file", *file, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect.InitSupabase(cfg.SupabaseURL, cfg.EventsKey())
	if err != nil {
		log.Error("Failed to connect to Supabase", "error", err)
		return 1
	}
	mongoClient, err := connect.MongoDBConnect(ctx, cfg)
	if err != nil {
		log.Warn("MongoDB unavailable, geocoding without cache", "error", err)
		mongoClient = nil
	} else if mongoClient != nil {
		defer func() {
			if err := connect.MongoDBDisconnect(mongoClient); err != nil {
				log.Error("Error disconnecting from MongoDB", "error", err)
			}
		}()
	}

	im := container.NewImporter(cfg, log, client, mongoClient)
	im.NormalizeDates = *normalizeDates
	im.DryRun = *dryRun

	log.Info("Importing events", "file", *file, "records", len(records), "dry_run", *dryRun)
	summary, err := im.Run(ctx, records)
	fmt.Printf("inserted %d, failed %d, skipped %d\n", summary.Inserted, summary.Failed, summary.Skipped)
	if err != nil {
		log.Error("Import interrupted", "error", err)
		return 1
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}
