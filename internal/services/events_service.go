package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/google/uuid"

	"github.com/joshua-takyi/nearby/internal/geolocation"
	"github.com/joshua-takyi/nearby/internal/helpers"
	"github.com/joshua-takyi/nearby/internal/models"
)

const maxListWindow = 100

type EventsService struct {
	repo          models.EventsRepo
	cld           *cloudinary.Cloudinary
	defaultCenter models.Coordinates
	logger        *slog.Logger
}

// NewEventsService builds the service. cld may be nil, in which case image
// URLs are stored as given.
func NewEventsService(repo models.EventsRepo, cld *cloudinary.Cloudinary, defaultCenter models.Coordinates, logger *slog.Logger) *EventsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsService{
		repo:          repo,
		cld:           cld,
		defaultCenter: defaultCenter,
		logger:        logger,
	}
}

// CreateEvents validates and inserts events. Remote images are copied to
// the events folder first; an upload failure keeps the original URL.
func (es *EventsService) CreateEvents(ctx context.Context, events []*models.Event) ([]*models.Event, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events provided")
	}

	for i, e := range events {
		if e == nil {
			return nil, fmt.Errorf("event %d is empty", i)
		}
		e.Title = strings.TrimSpace(e.Title)
		if err := models.Validate.Struct(e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if (e.Latitude == nil) != (e.Longitude == nil) {
			return nil, fmt.Errorf("event %d: latitude and longitude must be set together", i)
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
	}

	es.uploadImages(ctx, events)

	created, err := es.repo.InsertEvents(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("failed to insert events: %w", err)
	}
	return created, nil
}

func (es *EventsService) uploadImages(ctx context.Context, events []*models.Event) {
	if es.cld == nil {
		return
	}
	for _, e := range events {
		if e.Image == "" || helpers.IsHostedImage(e.Image) {
			continue
		}
		url, _, err := helpers.UploadImage(ctx, es.cld, e.Image, helpers.EventsFolder)
		if err != nil {
			es.logger.Warn("image upload failed, keeping source url",
				"event_id", e.ID,
				"error", err,
			)
			continue
		}
		e.Image = url
	}
}

// ListEvents returns a raw window of the table, newest first.
func (es *EventsService) ListEvents(ctx context.Context, from, to int) ([]*models.Event, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("invalid range %d-%d", from, to)
	}
	if to-from+1 > maxListWindow {
		to = from + maxListWindow - 1
	}
	return es.repo.ListEvents(ctx, models.EventFilter{
		OrderBy:   models.OrderByCreatedAt,
		Ascending: false,
	}, models.Range{From: from, To: to})
}

func (es *EventsService) DeleteEvent(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("invalid event id")
	}
	if err := es.repo.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

type MapMarker struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Date       string             `json:"date"`
	Location   string             `json:"location"`
	Position   models.Coordinates `json:"position"`
	DistanceKm *float64           `json:"distance,omitempty"`
}

type MapView struct {
	Center     models.Coordinates `json:"center"`
	UserCenter bool               `json:"user_center"`
	Markers    []MapMarker        `json:"markers"`
}

// BuildMap places the given feed events on a map centered on the user, or
// on the default center when there is no fix. Events without valid
// coordinates are left off.
func (es *EventsService) BuildMap(events []EventWithDistance, user *geolocation.Position) *MapView {
	view := &MapView{Center: es.defaultCenter, Markers: []MapMarker{}}
	if user != nil {
		c := models.Coordinates{Latitude: user.Latitude, Longitude: user.Longitude}
		if c.Valid() {
			view.Center = c
			view.UserCenter = true
		}
	}

	for _, e := range events {
		c, ok := e.Coordinates()
		if !ok {
			continue
		}
		view.Markers = append(view.Markers, MapMarker{
			ID:         e.ID,
			Title:      e.Title,
			Date:       e.Date,
			Location:   e.Location,
			Position:   c,
			DistanceKm: e.DistanceKm,
		})
	}
	return view
}
