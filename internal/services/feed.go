package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joshua-takyi/nearby/internal/geolocation"
	"github.com/joshua-takyi/nearby/internal/helpers"
	"github.com/joshua-takyi/nearby/internal/metrics"
	"github.com/joshua-takyi/nearby/internal/models"
)

const DefaultPageSize = 6

// isoMillis matches JavaScript's Date.toISOString, which is how the date
// column's ISO values were written.
const isoMillis = "2006-01-02T15:04:05.000Z"

var (
	ErrLoadInFlight   = errors.New("a page load is already in progress")
	ErrFeedExhausted  = errors.New("no more events to load")
	ErrStaleResponse  = errors.New("feed was reset while the page was loading")
	ErrPageOutOfOrder = errors.New("only the first page or the next page can be loaded")
)

type FeedState int

const (
	FeedIdle FeedState = iota
	FeedLoading
	FeedLoaded
	FeedExhausted
)

func (s FeedState) String() string {
	switch s {
	case FeedLoading:
		return "loading"
	case FeedLoaded:
		return "loaded"
	case FeedExhausted:
		return "exhausted"
	default:
		return "idle"
	}
}

func (s FeedState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventWithDistance is an event annotated with its distance from the user.
// DistanceKm is nil when either side has no position.
type EventWithDistance struct {
	*models.Event
	DistanceKm *float64 `json:"distance"`
}

type Page struct {
	Index   int                 `json:"page"`
	Events  []EventWithDistance `json:"events"`
	State   FeedState           `json:"state"`
	HasMore bool                `json:"has_more"`
}

// Feed pages upcoming events for one session. Page loads are serialized:
// while one is in flight further requests are refused without touching the
// store.
type Feed struct {
	repo     models.EventsRepo
	pageSize int
	now      func() time.Time
	logger   *slog.Logger

	mu         sync.Mutex
	state      FeedState
	events     []EventWithDistance
	nextPage   int
	location   *geolocation.Position
	generation uint64
}

func NewFeed(repo models.EventsRepo, pageSize int, logger *slog.Logger) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		repo:     repo,
		pageSize: pageSize,
		now:      time.Now,
		logger:   logger,
	}
}

// LoadPage fetches page index and merges it into the feed. Page 0 replaces
// the loaded events; otherwise page must be the next unloaded one, which is
// appended.
func (f *Feed) LoadPage(ctx context.Context, page int) (*Page, error) {
	if page < 0 {
		page = 0
	}

	f.mu.Lock()
	switch f.state {
	case FeedLoading:
		f.mu.Unlock()
		metrics.FeedLoads.WithLabelValues("in_flight").Inc()
		return nil, ErrLoadInFlight
	case FeedExhausted:
		f.mu.Unlock()
		metrics.FeedLoads.WithLabelValues("exhausted").Inc()
		return nil, ErrFeedExhausted
	}
	if page != 0 && page != f.nextPage {
		f.mu.Unlock()
		return nil, ErrPageOutOfOrder
	}
	prev := f.state
	f.state = FeedLoading
	gen := f.generation
	var loc *geolocation.Position
	if f.location != nil {
		l := *f.location
		loc = &l
	}
	f.mu.Unlock()

	filter := models.EventFilter{
		DateFrom:  f.now().UTC().Format(isoMillis),
		OrderBy:   models.OrderByDate,
		Ascending: true,
	}
	rows, err := f.repo.ListEvents(ctx, filter, models.PageRange(page, f.pageSize))

	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.generation {
		metrics.FeedLoads.WithLabelValues("stale").Inc()
		return nil, ErrStaleResponse
	}
	if err != nil {
		f.state = prev
		metrics.FeedLoads.WithLabelValues("error").Inc()
		f.logger.Error("failed to load feed page", "page", page, "error", err)
		return nil, err
	}

	annotated := withDistances(rows, loc)
	if loc != nil {
		sortByDistance(annotated)
	}

	if page == 0 {
		f.events = annotated
	} else {
		f.events = append(f.events, annotated...)
	}
	f.nextPage = page + 1

	hasMore := len(rows) == f.pageSize
	if hasMore {
		f.state = FeedLoaded
	} else {
		f.state = FeedExhausted
	}
	metrics.FeedLoads.WithLabelValues(f.state.String()).Inc()

	return &Page{
		Index:   page,
		Events:  annotated,
		State:   f.state,
		HasMore: hasMore,
	}, nil
}

// LoadNext loads the page after the last one loaded.
func (f *Feed) LoadNext(ctx context.Context) (*Page, error) {
	f.mu.Lock()
	next := f.nextPage
	f.mu.Unlock()
	return f.LoadPage(ctx, next)
}

// SetLocation records a new user position and resets the feed. Any load in
// flight will come back stale.
func (f *Feed) SetLocation(pos geolocation.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = &pos
	f.resetLocked()
}

// Reset clears the feed without changing the location.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

func (f *Feed) resetLocked() {
	f.events = nil
	f.nextPage = 0
	f.state = FeedIdle
	f.generation++
}

func (f *Feed) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) HasMore() bool {
	return f.State() != FeedExhausted
}

func (f *Feed) Location() *geolocation.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.location == nil {
		return nil
	}
	l := *f.location
	return &l
}

// Events returns a copy of every event loaded so far.
func (f *Feed) Events() []EventWithDistance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EventWithDistance(nil), f.events...)
}

func withDistances(rows []*models.Event, loc *geolocation.Position) []EventWithDistance {
	out := make([]EventWithDistance, 0, len(rows))
	for _, e := range rows {
		item := EventWithDistance{Event: e}
		if loc != nil {
			if c, ok := e.Coordinates(); ok {
				d := helpers.HaversineKm(loc.Latitude, loc.Longitude, c.Latitude, c.Longitude)
				item.DistanceKm = &d
			}
		}
		out = append(out, item)
	}
	return out
}

// sortByDistance orders one page by ascending distance; events without a
// distance go last. Earlier pages are not re-sorted.
func sortByDistance(events []EventWithDistance) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].DistanceKm, events[j].DistanceKm
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}
