package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/joshua-takyi/nearby/internal/config"
	"github.com/joshua-takyi/nearby/internal/connect"
	"github.com/joshua-takyi/nearby/internal/container"
	"github.com/joshua-takyi/nearby/internal/crawler"
	"github.com/joshua-takyi/nearby/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	listingURL := flag.String("url", crawler.DefaultListingURL, "listing page to crawl")
	browser := flag.Bool("browser", false, "render the page in headless Chromium before parsing")
	out := flag.String("out", "", "write crawled records to this JSON file instead of importing")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var fetcher crawler.Fetcher = crawler.NewHTTPFetcher(&http.Client{Timeout: 30 * time.Second}, cfg.GeocoderUserAgent)
	if *browser {
		bf, err := crawler.NewBrowserFetcher(60 * time.Second)
		if err != nil {
			log.Error("Failed to start browser", "error", err)
			return 1
		}
		defer func() {
			if err := bf.Close(); err != nil {
				log.Error("Error closing browser", "error", err)
			}
		}()
		fetcher = bf
	}

	records, err := crawler.New(fetcher, log).Records(ctx, *listingURL)
	if err != nil {
		log.Error("Crawl failed", "url", *listingURL, "error", err)
		return 1
	}

	if *out != "" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			log.Error("Failed to encode records", "error", err)
			return 1
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			log.Error("Failed to write records", "file", *out, "error", err)
			return 1
		}
		fmt.Printf("wrote %d records to %s\n", len(records), *out)
		return 0
	}

	if cfg.SupabaseServiceRoleKey == "" {
		log.Warn("SUPABASE_SERVICE_ROLE_KEY not set, inserts may be rejected by row level security")
	}
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

	log.Info("Importing crawled events", "url", *listingURL, "records", len(records), "dry_run", *dryRun)
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
