package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/nearby/internal/geocoding"
	"github.com/joshua-takyi/nearby/internal/models"
)

func geocodeFailed(c *gin.Context, err error) {
	if errors.Is(err, geocoding.ErrGeocodingUnavailable) {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse(err.Error()))
		return
	}
	// Throttle wait cut short by the client going away.
	c.JSON(http.StatusRequestTimeout, models.ErrorResponse(err.Error()))
}

// Geocode looks up ?q=. With ?venue=true the query is first cleaned up as a
// venue string and narrowed with suffix.
func Geocode(client *geocoding.Client, throttle *geocoding.Throttle, suffix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Query("q")
		if c.Query("venue") == "true" {
			q = geocoding.VenueQuery(q, suffix)
		}
		if q == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("q is required"))
			return
		}

		if err := throttle.Wait(c.Request.Context()); err != nil {
			geocodeFailed(c, err)
			return
		}
		match, err := client.GeocodeAddress(c.Request.Context(), q)
		if err != nil {
			geocodeFailed(c, err)
			return
		}
		if match == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse("no match").WithMessage(q))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(match, q))
	}
}

func ReverseGeocode(client *geocoding.Client, throttle *geocoding.Throttle) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
		coords := models.Coordinates{Latitude: lat, Longitude: lng}
		if latErr != nil || lngErr != nil || !coords.Valid() {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("lat and lng must be valid coordinates"))
			return
		}

		if err := throttle.Wait(c.Request.Context()); err != nil {
			geocodeFailed(c, err)
			return
		}
		place, err := client.ReverseGeocode(c.Request.Context(), lat, lng)
		if err != nil {
			geocodeFailed(c, err)
			return
		}
		if place == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse("no match"))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(place, ""))
	}
}
