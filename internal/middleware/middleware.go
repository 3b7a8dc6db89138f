package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshua-takyi/nearby/internal/credentials"
	"github.com/joshua-takyi/nearby/internal/helpers"
	"github.com/joshua-takyi/nearby/internal/metrics"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
	"github.com/joshua-takyi/nearby/internal/session"
)

// Context keys set by the middleware in this package.
const (
	UserKey        = "user"
	AccessTokenKey = "access_token"
	SessionKey     = "session"
	RequestIDKey   = "request_id"
)

// RequestID middleware adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger provides structured logging middleware
func StructuredLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request completion
		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(method, route, strconv.Itoa(statusCode), latency)

		if raw != "" {
			path = path + "?" + raw
		}

		requestID, _ := c.Get(RequestIDKey)

		logger.Info("HTTP Request",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", statusCode,
			"latency", latency,
			"client_ip", clientIP,
		)
	}
}

// ErrorHandler provides centralized error handling
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Handle any errors that occurred during request processing
		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			requestID, _ := c.Get(RequestIDKey)

			logger.Error("Request error",
				"request_id", requestID,
				"error", err.Error(),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)

			if c.Writer.Written() {
				return
			}
			// Don't return error details in production
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "Internal server error",
				"request_id": requestID,
			})
		}
	}
}

func unauthorized(c *gin.Context, reason string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse(reason).WithMessage("Unauthorized access"))
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// AuthMiddleware validates the access token, refreshing it from the stored
// refresh token when it has expired, and loads the caller's profile role.
func AuthMiddleware(tokens *helpers.TokenValidator, store credentials.Store, userService *services.UserService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := store.AccessToken(c.Request)
		if !ok {
			token = bearerToken(c)
		}

		var claims *helpers.CustomClaims
		var err error
		if token != "" {
			claims, err = tokens.ValidateToken(token)
		}

		if token == "" || err != nil {
			refreshToken, ok := store.RefreshToken(c.Request)
			if !ok {
				reason := "JWT token not found"
				if err != nil {
					reason = err.Error()
				}
				unauthorized(c, reason)
				return
			}

			tokenRes, refreshErr := userService.RefreshToken(c.Request.Context(), refreshToken)
			if refreshErr != nil || tokenRes == nil || tokenRes.AccessToken == "" {
				logger.Error("Token refresh failed", "error", refreshErr)
				store.Forget(c.Writer)
				unauthorized(c, "Token expired and refresh failed")
				return
			}

			logger.Info("Token refreshed successfully",
				"user_id", tokenRes.User.ID,
				"expires_in", tokenRes.ExpiresIn,
			)
			store.Save(c.Writer,
				tokenRes.AccessToken,
				time.Duration(tokenRes.ExpiresIn)*time.Second,
				tokenRes.RefreshToken,
				store.Remembered(c.Request),
			)

			token = tokenRes.AccessToken
			claims, err = tokens.ValidateToken(token)
			if err != nil {
				unauthorized(c, "Refreshed token validation failed")
				return
			}
		}

		role := models.RoleGuest
		var username, fullname, avatarURL string
		var createdAt time.Time
		userID, parseErr := uuid.Parse(claims.Subject)
		if parseErr != nil {
			logger.Error("Invalid user ID in token", "user_id", claims.Subject, "error", parseErr)
		} else if user, err := userService.GetUser(c.Request.Context(), userID, token); err != nil {
			logger.Info("Profile not found, using default role",
				"user_id", claims.Subject,
				"error", err,
			)
		} else {
			if user.Role != "" {
				role = user.Role
			}
			username = user.Username
			fullname = user.FullName
			avatarURL = user.AvatarURL
			createdAt = user.CreatedAt
		}

		enhancedClaims := &helpers.EnhancedClaims{
			CustomClaims: claims,
			Role:         role,
			UserID:       claims.Subject,
			Email:        claims.Email,
			Username:     username,
			Fullname:     fullname,
			AvatarURL:    avatarURL,
		}
		if !createdAt.IsZero() {
			enhancedClaims.CreatedAt = createdAt.Format(time.RFC3339)
		}

		c.Set(UserKey, enhancedClaims)
		c.Set(AccessTokenKey, token)
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok || !claims.IsAdmin() {
			c.JSON(http.StatusForbidden, models.ErrorResponse("admin role required").WithMessage("Forbidden"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Sessions attaches the caller's session, issuing a session cookie on the
// first request. It must run after AuthMiddleware.
func Sessions(registry *session.Registry, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			unauthorized(c, "no authenticated user")
			return
		}

		id, err := c.Cookie(session.CookieName)
		if err != nil || id == "" {
			id = uuid.New().String()
			c.SetCookie(session.CookieName, id, 0, "/", "", secure, true)
		}

		c.Set(SessionKey, registry.Acquire(id, claims.UserID))
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*helpers.EnhancedClaims)
	return claims, ok && claims != nil
}

func CurrentSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok && s != nil
}
