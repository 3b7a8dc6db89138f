package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/joshua-takyi/nearby/internal/helpers"
	"github.com/joshua-takyi/nearby/internal/middleware"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
)

// CreateEvents accepts a single event object or an array of them.
func CreateEvents(es *services.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		var events []*models.Event
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &events)
		} else {
			var e models.Event
			err = json.Unmarshal(trimmed, &e)
			events = []*models.Event{&e}
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()).WithMessage("invalid request payload"))
			return
		}

		created, err := es.CreateEvents(c.Request.Context(), events)
		if err != nil {
			if models.IsStoreError(err) {
				_ = c.Error(err)
				c.JSON(http.StatusBadGateway, models.ErrorResponse(err.Error()))
				return
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusCreated, models.SuccessResponse(created, "events created"))
	}
}

func ListEvents(es *services.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := strconv.Atoi(c.DefaultQuery("from", "0"))
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid from parameter"))
			return
		}
		to, err := strconv.Atoi(c.DefaultQuery("to", strconv.Itoa(from+19)))
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid to parameter"))
			return
		}

		events, err := es.ListEvents(c.Request.Context(), from, to)
		if err != nil {
			if models.IsStoreError(err) {
				_ = c.Error(err)
				c.JSON(http.StatusBadGateway, models.ErrorResponse("failed to list events"))
				return
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.PaginatedResponse(events, from, to-from+1, len(events)))
	}
}

func DeleteEvent(es *services.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := helpers.StringTrim(c.Param("id"))
		if id == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("event ID is required"))
			return
		}

		if err := es.DeleteEvent(c.Request.Context(), id); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"id": id}, "event deleted"))
	}
}

// EventsMap places the session's loaded feed events on a map.
func EventsMap(es *services.EventsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := currentSession(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(es.BuildMap(s.Feed.Events(), s.Feed.Location()), ""))
	}
}

func RemoveDuplicates(ds *services.DedupeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		triggeredBy := "api"
		if claims, ok := middleware.CurrentUser(c); ok {
			triggeredBy = claims.UserID
		}

		res := ds.RemoveDuplicates(c.Request.Context(), triggeredBy)
		status := http.StatusOK
		if !res.Success {
			status = http.StatusBadGateway
		}
		c.JSON(status, models.ApiResponse{
			Success: res.Success,
			Message: res.Message,
			Data:    res,
			Error:   res.Error,
		})
	}
}

func DedupeHistory(ds *services.DedupeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid limit parameter"))
			return
		}
		entries, err := ds.History(c.Request.Context(), limit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, models.ErrorResponse("failed to load dedupe history"))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(entries, ""))
	}
}
