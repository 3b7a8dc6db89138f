package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	SupabaseURL     string
	SupabaseAnonKey string
	MongoDBURI      string
	MongoDBPassword string
	MongoDBName     string
	Environment     string
	LogLevel        string
	FrontendURL     string

	// SupabaseServiceRoleKey bypasses row level security; used for event writes and deletes when set.
	SupabaseServiceRoleKey string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderSuffix    string
	GeocodeInterval   time.Duration
	GeocodeCacheTTL   time.Duration

	DefaultLatitude  float64
	DefaultLongitude float64

	FeedPageSize      int
	SessionIdleExpiry time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey: os.Getenv("SUPABASE_URL_ANON_KEY"),
		MongoDBURI:      os.Getenv("MONGODB_URI"),
		MongoDBPassword: os.Getenv("MONGODB_PASSWORD"),
		MongoDBName:     getEnvWithDefault("MONGODB_DATABASE", "nearby"),
		Environment:     getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		FrontendURL:     getEnvWithDefault("FRONTEND_URL", "http://localhost:3000"),

		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		GeocoderURL:       getEnvWithDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnvWithDefault("GEOCODER_USER_AGENT", "nearby-events/1.0"),
		GeocoderSuffix:    getEnvWithDefault("GEOCODER_SUFFIX", ", Buenos Aires, Argentina"),
	}

	var err error
	if cfg.GeocodeInterval, err = getDurationWithDefault("GEOCODE_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.GeocodeInterval < time.Second {
		return nil, fmt.Errorf("GEOCODE_INTERVAL must be at least 1s, got %s", cfg.GeocodeInterval)
	}
	if cfg.GeocodeCacheTTL, err = getDurationWithDefault("GEOCODE_CACHE_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionIdleExpiry, err = getDurationWithDefault("SESSION_IDLE_EXPIRY", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DefaultLatitude, err = getFloatWithDefault("DEFAULT_LATITUDE", -34.6037); err != nil {
		return nil, err
	}
	if cfg.DefaultLongitude, err = getFloatWithDefault("DEFAULT_LONGITUDE", -58.3816); err != nil {
		return nil, err
	}
	if cfg.FeedPageSize, err = getIntWithDefault("FEED_PAGE_SIZE", 6); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.SupabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL_ANON_KEY is required")
	}
	if cfg.MongoDBURI != "" && cfg.MongoDBPassword == "" {
		return nil, fmt.Errorf("MONGODB_PASSWORD is required when MONGODB_URI is set")
	}
	if cfg.DefaultLatitude < -90 || cfg.DefaultLatitude > 90 {
		return nil, fmt.Errorf("DEFAULT_LATITUDE out of range: %v", cfg.DefaultLatitude)
	}
	if cfg.DefaultLongitude < -180 || cfg.DefaultLongitude > 180 {
		return nil, fmt.Errorf("DEFAULT_LONGITUDE out of range: %v", cfg.DefaultLongitude)
	}
	if cfg.FeedPageSize <= 0 {
		return nil, fmt.Errorf("FEED_PAGE_SIZE must be positive, got %d", cfg.FeedPageSize)
	}

	return cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloatWithDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// MongoEnabled reports whether the audit log and geocode cache have a backing store.
func (c *Config) MongoEnabled() bool {
	return c.MongoDBURI != ""
}

// EventsKey is the key the event store client authenticates with.
func (c *Config) EventsKey() string {
	if c.SupabaseServiceRoleKey != "" {
		return c.SupabaseServiceRoleKey
	}
	return c.SupabaseAnonKey
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}
