package container

import (
	"log/slog"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joshua-takyi/nearby/internal/config"
	"github.com/joshua-takyi/nearby/internal/credentials"
	"github.com/joshua-takyi/nearby/internal/geocoding"
	"github.com/joshua-takyi/nearby/internal/helpers"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/seed"
	"github.com/joshua-takyi/nearby/internal/services"
	"github.com/joshua-takyi/nearby/internal/session"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *slog.Logger
	Cloudinary *cloudinary.Cloudinary
	// Database clients
	SupabaseClient *supabase.Client
	MongoDBClient  *mongo.Client

	Tokens          *helpers.TokenValidator
	Credentials     credentials.Store
	Sessions        *session.Registry
	Geocoder        *geocoding.Client
	GeocodeThrottle *geocoding.Throttle

	UserService   *services.UserService
	EventsService *services.EventsService
	DedupeService *services.DedupeService
}

// NewContainer wires services on top of the given clients. eventsClient may
// be the same client as supabaseClient; mongoDBClient and cld may be nil.
func NewContainer(
	cfg *config.Config,
	logger *slog.Logger,
	cld *cloudinary.Cloudinary,
	supabaseClient *supabase.Client,
	eventsClient *supabase.Client,
	mongoDBClient *mongo.Client,
) *Container {
	// Initialize repositories
	supa := models.SupabaseNewRepo(supabaseClient, cfg.SupabaseURL, cfg.SupabaseAnonKey)
	events := models.SupabaseNewRepo(eventsClient, cfg.SupabaseURL, cfg.EventsKey())

	var auditRepo models.DedupeAuditRepo
	geocoderOpts := []geocoding.Option{geocoding.WithLogger(logger)}
	if mongoDBClient != nil {
		mdb := models.MongodbNewRepo(mongoDBClient, cfg.MongoDBName)
		auditRepo = mdb
		geocoderOpts = append(geocoderOpts, geocoding.WithCache(geocoding.NewStoreCache(mdb, cfg.GeocodeCacheTTL)))
	}

	defaultCenter := models.Coordinates{Latitude: cfg.DefaultLatitude, Longitude: cfg.DefaultLongitude}
	feedLogger := logger.With("component", "feed")
	sessions := session.NewRegistry(func() *services.Feed {
		return services.NewFeed(events, cfg.FeedPageSize, feedLogger)
	}, cfg.SessionIdleExpiry, logger.With("component", "sessions"))

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Cloudinary:      cld,
		SupabaseClient:  supabaseClient,
		MongoDBClient:   mongoDBClient,
		Tokens:          helpers.NewTokenValidator(cfg.SupabaseURL),
		Credentials:     credentials.NewCookieStore(cfg.IsProduction()),
		Sessions:        sessions,
		Geocoder:        geocoding.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, geocoderOpts...),
		GeocodeThrottle: geocoding.NewThrottle(cfg.GeocodeInterval),
		UserService:     services.NewUserService(supa),
		EventsService:   services.NewEventsService(events, cld, defaultCenter, logger.With("component", "events")),
		DedupeService:   services.NewDedupeService(events, auditRepo, logger.With("component", "dedupe")),
	}
}

// NewImporter builds the seed importer shared by the seed and crawl commands.
// Lookups go through the geocode cache when mongoDBClient is set.
func NewImporter(cfg *config.Config, logger *slog.Logger, eventsClient *supabase.Client, mongoDBClient *mongo.Client) *seed.Importer {
	events := models.SupabaseNewRepo(eventsClient, cfg.SupabaseURL, cfg.EventsKey())

	geocoderOpts := []geocoding.Option{geocoding.WithLogger(logger)}
	if mongoDBClient != nil {
		mdb := models.MongodbNewRepo(mongoDBClient, cfg.MongoDBName)
		geocoderOpts = append(geocoderOpts, geocoding.WithCache(geocoding.NewStoreCache(mdb, cfg.GeocodeCacheTTL)))
	}

	return seed.NewImporter(
		events,
		geocoding.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, geocoderOpts...),
		geocoding.NewThrottle(cfg.GeocodeInterval),
		cfg.GeocoderSuffix,
		models.Coordinates{Latitude: cfg.DefaultLatitude, Longitude: cfg.DefaultLongitude},
		logger,
	)
}
