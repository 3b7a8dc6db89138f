// Package geocoding converts venue strings to coordinates and back through a
// Nominatim-compatible HTTP API.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joshua-takyi/nearby/internal/metrics"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "nearby-events/1.0"

	breakerName = "geocoder"
)

// ErrGeocodingUnavailable covers transport failures, non-2xx answers and an
// open breaker. "No match" is not an error.
var ErrGeocodingUnavailable = errors.New("geocoding service unavailable")

type Match struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
}

type Place struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address,omitempty"`
}

// Cache memoizes forward lookups. A nil match with found=false is a cached
// negative result; ok=false means the query has not been seen.
type Cache interface {
	GetMatch(ctx context.Context, query string) (m *Match, ok bool, err error)
	PutMatch(ctx context.Context, query string, m *Match) error
}

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
	cache     Cache
	logger    *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreakerSettings overrides the breaker thresholds, mostly for tests.
func WithBreakerSettings(s gobreaker.Settings) Option {
	return func(c *Client) { c.cb = newBreaker(s) }
}

func NewClient(baseURL, userAgent string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cb == nil {
		c.cb = newBreaker(gobreaker.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return c
}

func newBreaker(s gobreaker.Settings) *gobreaker.CircuitBreaker[[]byte] {
	s.Name = breakerName
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	s.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
	}
	return gobreaker.NewCircuitBreaker[[]byte](s)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type reverseResult struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// GeocodeAddress returns the best match for address, or nil when the
// service knows no such place.
func (c *Client) GeocodeAddress(ctx context.Context, address string) (*Match, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	if c.cache != nil {
		m, ok, err := c.cache.GetMatch(ctx, address)
		if err != nil {
			c.logger.Warn("geocode cache read failed", "query", address, "error", err)
		} else if ok {
			metrics.GeocodeRequests.WithLabelValues("search", "cached").Inc()
			return m, nil
		}
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", address)
	q.Set("limit", "1")

	body, err := c.get(ctx, "search", "/search?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		metrics.GeocodeRequests.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("%w: decode search response: %v", ErrGeocodingUnavailable, err)
	}

	var match *Match
	if len(results) > 0 {
		lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
		lng, lngErr := strconv.ParseFloat(results[0].Lon, 64)
		if latErr == nil && lngErr == nil {
			match = &Match{Latitude: lat, Longitude: lng, DisplayName: results[0].DisplayName}
		}
	}

	if match == nil {
		metrics.GeocodeRequests.WithLabelValues("search", "miss").Inc()
	} else {
		metrics.GeocodeRequests.WithLabelValues("search", "hit").Inc()
	}

	if c.cache != nil {
		if err := c.cache.PutMatch(ctx, address, match); err != nil {
			c.logger.Warn("geocode cache write failed", "query", address, "error", err)
		}
	}
	return match, nil
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	body, err := c.get(ctx, "reverse", "/reverse?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var res reverseResult
	if err := json.Unmarshal(body, &res); err != nil {
		metrics.GeocodeRequests.WithLabelValues("reverse", "error").Inc()
		return nil, fmt.Errorf("%w: decode reverse response: %v", ErrGeocodingUnavailable, err)
	}
	if res.DisplayName == "" {
		metrics.GeocodeRequests.WithLabelValues("reverse", "miss").Inc()
		return nil, nil
	}
	metrics.GeocodeRequests.WithLabelValues("reverse", "hit").Inc()
	return &Place{DisplayName: res.DisplayName, Address: res.Address}, nil
}

func (c *Client) get(ctx context.Context, kind, path string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.GeocodeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	body, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	})
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues(kind, "error").Inc()
		c.logger.Error("geocoding request failed", "kind", kind, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGeocodingUnavailable, err)
	}
	return body, nil
}
