package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/nearby/internal/geolocation"
	"github.com/joshua-takyi/nearby/internal/metrics"
	"github.com/joshua-takyi/nearby/internal/models"
)

type locationReport struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Timestamp int64    `json:"timestamp"`
	// ErrorCode is the browser's GeolocationPositionError code, or 0 when
	// the browser has no geolocation API.
	ErrorCode *int `json:"error_code"`
}

// locationStatus maps geolocation errors onto HTTP statuses.
func locationStatus(err error) int {
	switch {
	case errors.Is(err, geolocation.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, geolocation.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, geolocation.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusServiceUnavailable
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, geolocation.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, geolocation.ErrTimeout):
		return "timeout"
	case errors.Is(err, geolocation.ErrUnsupported):
		return "unsupported"
	default:
		return "position_unavailable"
	}
}

// ReportLocation accepts a fix or a platform error from the client.
func ReportLocation() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := currentSession(c)
		if !ok {
			return
		}

		var req locationReport
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		if req.ErrorCode != nil {
			err := s.Platform.ReportError(*req.ErrorCode)
			metrics.LocationReports.WithLabelValues(errorKind(err)).Inc()
			c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
				"error":    errorKind(err),
				"message":  err.Error(),
				"prompted": s.Accessor.Prompted(),
			}, "location error recorded"))
			return
		}

		if req.Latitude == nil || req.Longitude == nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("latitude and longitude are required"))
			return
		}
		pos := geolocation.Position{
			Latitude:          *req.Latitude,
			Longitude:         *req.Longitude,
			AccuracyMeters:    req.Accuracy,
			CapturedAtEpochMs: req.Timestamp,
		}
		if err := s.Platform.Report(pos); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}
		metrics.LocationReports.WithLabelValues("fix").Inc()

		c.JSON(http.StatusAccepted, models.SuccessResponse(gin.H{
			"feed_state": s.Feed.State(),
		}, "location updated"))
	}
}

// GetLocation asks for the session's position. It returns a fresh enough
// fix at once, or waits for the client to report one.
func GetLocation() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := currentSession(c)
		if !ok {
			return
		}

		pos, err := s.Accessor.GetCurrentPosition(c.Request.Context())
		if err != nil {
			c.JSON(locationStatus(err), models.ApiResponse{
				Success: false,
				Error:   errorKind(err),
				Message: err.Error(),
				Data:    gin.H{"prompted": s.Accessor.Prompted()},
			})
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"position": pos,
			"prompted": s.Accessor.Prompted(),
		}, ""))
	}
}
