package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/joshua-takyi/nearby/internal/geolocation"
	"github.com/joshua-takyi/nearby/internal/models"
)

var baCenter = models.Coordinates{Latitude: -34.6037, Longitude: -58.3816}

func TestCreateEventsValidates(t *testing.T) {
	svc := NewEventsService(&memoryEventsRepo{}, nil, baCenter, quietLogger())
	lat := 95.0
	lng := 10.0

	tests := map[string]*models.Event{
		"missing title":     {Title: "   "},
		"latitude range":    {Title: "x", Latitude: &lat, Longitude: &lng},
		"half coordinates":  {Title: "x", Longitude: &lng},
		"invalid image url": {Title: "x", Image: "not a url"},
	}
	for name, e := range tests {
		if _, err := svc.CreateEvents(context.Background(), []*models.Event{e}); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestCreateEventsInserts(t *testing.T) {
	repo := &memoryEventsRepo{}
	svc := NewEventsService(repo, nil, baCenter, quietLogger())

	e := &models.Event{Title: " Tango en el Parque ", Image: "https://images.example.com/t.jpg"}
	created, err := svc.CreateEvents(context.Background(), []*models.Event{e})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || created[0].ID == "" || created[0].Title != "Tango en el Parque" {
		t.Errorf("unexpected created %+v", created)
	}
	// Without Cloudinary the image is kept as given.
	if created[0].Image != "https://images.example.com/t.jpg" {
		t.Errorf("image = %q", created[0].Image)
	}
}

func TestListEventsCapsWindow(t *testing.T) {
	repo := &memoryEventsRepo{}
	svc := NewEventsService(repo, nil, baCenter, quietLogger())

	if _, err := svc.ListEvents(context.Background(), 5, 2); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := svc.ListEvents(context.Background(), 0, 5000); err != nil {
		t.Fatal(err)
	}
	if repo.lastRange.Len() != maxListWindow {
		t.Errorf("window = %d, want %d", repo.lastRange.Len(), maxListWindow)
	}
}

func TestBuildMap(t *testing.T) {
	svc := NewEventsService(&memoryEventsRepo{}, nil, baCenter, quietLogger())

	valid := &models.Event{ID: uuid.New().String(), Title: "ok"}
	valid.SetCoordinates(models.Coordinates{Latitude: -34.58, Longitude: -58.42})
	broken := &models.Event{ID: uuid.New().String(), Title: "broken"}
	broken.SetCoordinates(models.Coordinates{Latitude: 120, Longitude: 0})
	missing := &models.Event{ID: uuid.New().String(), Title: "missing"}

	events := []EventWithDistance{{Event: valid}, {Event: broken}, {Event: missing}}

	view := svc.BuildMap(events, nil)
	if view.Center != baCenter || view.UserCenter {
		t.Errorf("center = %+v, user=%v", view.Center, view.UserCenter)
	}
	if len(view.Markers) != 1 || view.Markers[0].Title != "ok" {
		t.Errorf("markers = %+v", view.Markers)
	}

	view = svc.BuildMap(events, &geolocation.Position{Latitude: -34.7, Longitude: -58.5})
	if !view.UserCenter || view.Center.Latitude != -34.7 {
		t.Errorf("user center not used: %+v", view.Center)
	}
}

func TestDeleteEventRejectsEmptyID(t *testing.T) {
	svc := NewEventsService(&memoryEventsRepo{}, nil, baCenter, quietLogger())
	if err := svc.DeleteEvent(context.Background(), "  "); err == nil {
		t.Error("expected error")
	}
}

func TestDeleteEventAcceptsSeededID(t *testing.T) {
	repo := &memoryEventsRepo{events: []*models.Event{{ID: "uuid-1", Title: "ATP de Buenos Aires"}}}
	svc := NewEventsService(repo, nil, baCenter, quietLogger())
	if err := svc.DeleteEvent(context.Background(), "uuid-1"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if len(repo.titles()) != 0 {
		t.Error("seeded event was not deleted")
	}
}
