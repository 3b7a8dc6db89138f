package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/nearby/internal/container"
	"github.com/joshua-takyi/nearby/internal/handlers"
	"github.com/joshua-takyi/nearby/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
	}))

	// Add middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1
	v1 := r.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "OK",
				"service": "nearby-api",
			})
		})

		// public routes
		v1.POST("/signup", handlers.CreateUser(container.UserService))
		v1.POST("/login", handlers.AuthenticateUser(container.UserService, container.Credentials))
		v1.POST("/logout", handlers.Logout(container.UserService, container.Credentials, container.Sessions, cfg.IsProduction()))
		v1.GET("/auth/google", handlers.GoogleAuth(cfg.SupabaseURL, cfg.FrontendURL))
		v1.GET("/auth/callback", handlers.GoogleAuthCallback(cfg.FrontendURL))
	}

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(container.Tokens, container.Credentials, container.UserService, container.Logger))
	protected.Use(middleware.Sessions(container.Sessions, cfg.IsProduction()))
	{
		protected.GET("/profile", handlers.Profile())

		protected.POST("/location", handlers.ReportLocation())
		protected.GET("/location", handlers.GetLocation())

		protected.GET("/feed", handlers.GetFeed(cfg.FeedPageSize))
		protected.GET("/feed/events", handlers.FeedEvents())
		protected.POST("/feed/next", handlers.NextFeedPage(cfg.FeedPageSize))

		protected.GET("/geocode", handlers.Geocode(container.Geocoder, container.GeocodeThrottle, cfg.GeocoderSuffix))
		protected.GET("/geocode/reverse", handlers.ReverseGeocode(container.Geocoder, container.GeocodeThrottle))
	}

	eventRoutes := protected.Group("/events")
	{
		eventRoutes.GET("", handlers.ListEvents(container.EventsService))
		eventRoutes.GET("/map", handlers.EventsMap(container.EventsService))
	}

	admin := eventRoutes.Group("")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("", handlers.CreateEvents(container.EventsService))
		admin.DELETE("/:id", handlers.DeleteEvent(container.EventsService))
		admin.POST("/dedupe", handlers.RemoveDuplicates(container.DedupeService))
		admin.GET("/dedupe/history", handlers.DedupeHistory(container.DedupeService))
	}

	return r
}
