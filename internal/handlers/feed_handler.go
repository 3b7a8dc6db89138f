package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
	"github.com/joshua-takyi/nearby/internal/session"
)

func writePage(c *gin.Context, s *session.Session, page *services.Page, err error, pageSize int) {
	switch {
	case err == nil:
		resp := models.FeedResponse(page.Events, page.Index, pageSize, page.HasMore)
		resp.Message = page.State.String()
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, services.ErrLoadInFlight), errors.Is(err, services.ErrStaleResponse):
		c.JSON(http.StatusAccepted, models.ApiResponse{
			Success: false,
			Error:   err.Error(),
			Message: s.Feed.State().String(),
		})
	case errors.Is(err, services.ErrPageOutOfOrder):
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
	case errors.Is(err, services.ErrFeedExhausted):
		hasMore := false
		c.JSON(http.StatusOK, models.ApiResponse{
			Success: true,
			Message: services.FeedExhausted.String(),
			Data:    []services.EventWithDistance{},
			HasMore: &hasMore,
		})
	default:
		// The client renders the empty state from data and has_more.
		_ = c.Error(err)
		hasMore := false
		c.JSON(http.StatusBadGateway, models.ApiResponse{
			Success: false,
			Error:   "failed to load events",
			Message: s.Feed.State().String(),
			Data:    []services.EventWithDistance{},
			HasMore: &hasMore,
		})
	}
}

// GetFeed loads page ?page=N of the session's feed. ?refresh=true starts
// over from page 0 even when the feed is exhausted.
func GetFeed(pageSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := currentSession(c)
		if !ok {
			return
		}

		page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
		if err != nil || page < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid page parameter"))
			return
		}
		if c.Query("refresh") == "true" {
			s.Feed.Reset()
		}

		p, err := s.Feed.LoadPage(c.Request.Context(), page)
		writePage(c, s, p, err, pageSize)
	}
}

// NextFeedPage is the "load more" action.
func NextFeedPage(pageSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := currentSession(c)
		if !ok {
			return
		}
		p, err := s.Feed.LoadNext(c.Request.Context())
		writePage(c, s, p, err, pageSize)
	}
}

// FeedEvents returns everything loaded so far without touching the store.
func FeedEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := currentSession(c)
		if !ok {
			return
		}
		hasMore := s.Feed.HasMore()
		c.JSON(http.StatusOK, models.ApiResponse{
			Success: true,
			Message: s.Feed.State().String(),
			Data:    s.Feed.Events(),
			HasMore: &hasMore,
		})
	}
}
