package models

import (
	"time"
)

type Event struct {
	// ID is opaque text: generated rows carry a UUID, hand-seeded ones may not ("uuid-1").
	ID string `db:"id" json:"id"`

	Title       string `db:"title" json:"title" validate:"required"` // e.g., "Festival de Jazz en el Parque"
	Description string `db:"description" json:"description"`
	Image       string `db:"image" json:"image,omitempty" validate:"omitempty,url"`
	// Date is free text in most rows ("Viernes 14 de febrero, 20 h."); only ISO values sort and filter correctly.
	Date     string   `db:"date" json:"date"`
	Location string   `db:"location" json:"location"` // e.g., "Teatro Avenida Av. de Mayo 1222, Monserrat"
	Latitude *float64 `db:"latitude" json:"latitude" validate:"omitempty,latitude"`
	// Longitude is nil together with Latitude when the venue was never geocoded.
	Longitude *float64  `db:"longitude" json:"longitude" validate:"omitempty,longitude"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Coordinates returns the event position when both values are present and in range.
func (e *Event) Coordinates() (Coordinates, bool) {
	if e == nil || e.Latitude == nil || e.Longitude == nil {
		return Coordinates{}, false
	}
	c := Coordinates{Latitude: *e.Latitude, Longitude: *e.Longitude}
	return c, c.Valid()
}

// SetCoordinates stores c on the event.
func (e *Event) SetCoordinates(c Coordinates) {
	lat, lng := c.Latitude, c.Longitude
	e.Latitude = &lat
	e.Longitude = &lng
}

// insertRow maps the event to the column set sent to the store. Zero
// timestamps are left out so the table defaults apply.
func (e *Event) insertRow() map[string]interface{} {
	row := map[string]interface{}{
		"id":          e.ID,
		"title":       e.Title,
		"description": e.Description,
		"image":       e.Image,
		"date":        e.Date,
		"location":    e.Location,
		"latitude":    e.Latitude,
		"longitude":   e.Longitude,
	}
	if !e.CreatedAt.IsZero() {
		row["created_at"] = e.CreatedAt
	}
	if !e.UpdatedAt.IsZero() {
		row["updated_at"] = e.UpdatedAt
	}
	return row
}
