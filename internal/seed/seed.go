// Package seed imports event records from a JSON file, geocoding venues that
// arrive without coordinates.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/joshua-takyi/nearby/internal/geocoding"
	"github.com/joshua-takyi/nearby/internal/models"
)

// Record is one entry of a seed file. IDs are kept as written; a record
// without one gets a UUID.
type Record struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	Date        string     `json:"date"`
	Location    string     `json:"location"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// ReadRecords decodes a JSON array of records.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	return records, nil
}

type Geocoder interface {
	GeocodeAddress(ctx context.Context, address string) (*geocoding.Match, error)
}

type Waiter interface {
	Wait(ctx context.Context) error
}

// Outcome of a single record.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

type Result struct {
	Title    string
	Outcome  Outcome
	Geocoded bool
	Fallback bool
	Err      error
}

type Summary struct {
	Inserted int
	Failed   int
	Skipped  int
	Results  []Result
}

type Importer struct {
	repo           models.EventsRepo
	geocoder       Geocoder
	throttle       Waiter
	suffix         string
	fallback       models.Coordinates
	NormalizeDates bool
	DryRun         bool
	now            func() time.Time
	logger         *slog.Logger
}

func NewImporter(repo models.EventsRepo, geocoder Geocoder, throttle Waiter, suffix string, fallback models.Coordinates, logger *slog.Logger) *Importer {
	return &Importer{
		repo:     repo,
		geocoder: geocoder,
		throttle: throttle,
		suffix:   suffix,
		fallback: fallback,
		now:      time.Now,
		logger:   logger,
	}
}

// Run imports records in order, one insert per record. A failed record is
// logged and counted; the rest still run. Only context cancellation stops
// the import early.
func (im *Importer) Run(ctx context.Context, records []Record) (*Summary, error) {
	summary := &Summary{Results: make([]Result, 0, len(records))}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res := im.importOne(ctx, &records[i])
		summary.Results = append(summary.Results, res)

		switch res.Outcome {
		case OutcomeInserted:
			summary.Inserted++
			im.logger.Info("Inserted event", "title", res.Title, "geocoded", res.Geocoded, "fallback", res.Fallback)
		case OutcomeSkipped:
			summary.Skipped++
			im.logger.Warn("Skipped event", "index", i, "error", res.Err)
		default:
			summary.Failed++
			im.logger.Error("Failed to insert event", "title", res.Title, "error", res.Err)
		}
	}

	return summary, nil
}

func (im *Importer) importOne(ctx context.Context, rec *Record) Result {
	event := im.toEvent(rec)
	res := Result{Title: event.Title}

	if event.Title == "" {
		res.Outcome = OutcomeSkipped
		res.Err = fmt.Errorf("record has no title")
		return res
	}

	if _, ok := event.Coordinates(); !ok {
		match, err := im.locate(ctx, event.Location)
		switch {
		case err != nil && ctx.Err() != nil:
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		case err != nil:
			// A failed lookup is treated like no match.
			im.logger.Warn("Geocoding failed, using fallback coordinates", "location", event.Location, "error", err)
			event.SetCoordinates(im.fallback)
			res.Fallback = true
		case match == nil:
			im.logger.Info("No coordinates found, using fallback", "location", event.Location)
			event.SetCoordinates(im.fallback)
			res.Fallback = true
		default:
			event.SetCoordinates(models.Coordinates{Latitude: match.Latitude, Longitude: match.Longitude})
			res.Geocoded = true
		}
	}

	if im.NormalizeDates && event.Date != "" {
		if iso, err := NormalizeDate(event.Date, im.now()); err == nil {
			event.Date = iso
		} else {
			im.logger.Debug("Keeping date as written", "date", event.Date)
		}
	}

	if im.DryRun {
		res.Outcome = OutcomeInserted
		return res
	}

	if _, err := im.repo.InsertEvents(ctx, []*models.Event{event}); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	res.Outcome = OutcomeInserted
	return res
}

func (im *Importer) locate(ctx context.Context, venue string) (*geocoding.Match, error) {
	q := geocoding.VenueQuery(venue, im.suffix)
	if q == "" {
		return nil, nil
	}
	if err := im.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	im.logger.Debug("Looking up coordinates", "query", q)
	return im.geocoder.GeocodeAddress(ctx, q)
}

func (im *Importer) toEvent(rec *Record) *models.Event {
	e := &models.Event{
		Title:       strings.TrimSpace(rec.Title),
		Description: strings.TrimSpace(rec.Description),
		Image:       strings.TrimSpace(rec.Image),
		Date:        strings.TrimSpace(rec.Date),
		Location:    strings.TrimSpace(rec.Location),
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
	}
	e.ID = strings.TrimSpace(rec.ID)
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if rec.CreatedAt != nil {
		e.CreatedAt = *rec.CreatedAt
	}
	if rec.UpdatedAt != nil {
		e.UpdatedAt = *rec.UpdatedAt
	}
	return e
}
