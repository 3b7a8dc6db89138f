package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joshua-takyi/nearby/internal/models"
)

func TestVenueQuery(t *testing.T) {
	tests := []struct {
		venue string
		want  string
	}{
		{"Lawn Tennis Club Av. Olleros 1510, Palermo", "Lawn Tennis Club Av. Olleros 1510" + DefaultSuffix},
		{"Teatro Colón (Microcentro)", "Teatro Colón" + DefaultSuffix},
		{"Usina del Arte (La Boca, CABA), Caffarena 1", "Usina del Arte" + DefaultSuffix},
		{"  Niceto Club  ", "Niceto Club" + DefaultSuffix},
		{"(sin dirección)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := VenueQuery(tt.venue, DefaultSuffix); got != tt.want {
			t.Errorf("VenueQuery(%q) = %q, want %q", tt.venue, got, tt.want)
		}
	}
}

func TestGeocodeAddress(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Path != "/search" || r.URL.Query().Get("limit") != "1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`[{"lat":"-34.5889","lon":"-58.4105","display_name":"Lawn Tennis Club"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "nearby-test")
	m, err := c.GeocodeAddress(context.Background(), "Olleros 1510, Buenos Aires")
	if err != nil {
		t.Fatalf("GeocodeAddress: %v", err)
	}
	if m == nil || m.Latitude != -34.5889 || m.Longitude != -58.4105 || m.DisplayName != "Lawn Tennis Club" {
		t.Errorf("unexpected match %+v", m)
	}
	if gotUA != "nearby-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotQuery != "Olleros 1510, Buenos Aires" {
		t.Errorf("q = %q", gotQuery)
	}
}

func TestGeocodeAddressNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	m, err := NewClient(srv.URL, "").GeocodeAddress(context.Background(), "nowhere")
	if err != nil || m != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", m, err)
	}
}

func TestGeocodeAddressServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").GeocodeAddress(context.Background(), "anywhere")
	if !errors.Is(err, ErrGeocodingUnavailable) {
		t.Errorf("err = %v, want ErrGeocodingUnavailable", err)
	}
}

func TestBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithBreakerSettings(gobreaker.Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))

	for i := 0; i < 4; i++ {
		if _, err := c.GeocodeAddress(context.Background(), "x"); !errors.Is(err, ErrGeocodingUnavailable) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server saw %d calls, want 2 before the breaker opened", n)
	}
}

func TestReverseGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" || r.URL.Query().Get("lat") != "-34.6037" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"display_name":"Obelisco, Buenos Aires","address":{"city":"Buenos Aires"}}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, "").ReverseGeocode(context.Background(), -34.6037, -58.3816)
	if err != nil {
		t.Fatalf("ReverseGeocode: %v", err)
	}
	if p == nil || p.DisplayName != "Obelisco, Buenos Aires" || p.Address["city"] != "Buenos Aires" {
		t.Errorf("unexpected place %+v", p)
	}
}

func TestReverseGeocodeNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, "").ReverseGeocode(context.Background(), 0, 0)
	if err != nil || p != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", p, err)
	}
}

type memoryStore struct {
	entries map[string]*models.GeocodeCacheEntry
}

func (m *memoryStore) GetGeocode(_ context.Context, q string) (*models.GeocodeCacheEntry, error) {
	return m.entries[q], nil
}

func (m *memoryStore) PutGeocode(_ context.Context, e *models.GeocodeCacheEntry) error {
	m.entries[e.Query] = e
	return nil
}

func TestCachedLookups(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("q") == "known" {
			w.Write([]byte(`[{"lat":"1.5","lon":"2.5","display_name":"Known"}]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	store := &memoryStore{entries: map[string]*models.GeocodeCacheEntry{}}
	c := NewClient(srv.URL, "", WithCache(NewStoreCache(store, time.Hour)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		m, err := c.GeocodeAddress(ctx, "known")
		if err != nil || m == nil || m.Latitude != 1.5 {
			t.Fatalf("known lookup %d: (%+v, %v)", i, m, err)
		}
		m, err = c.GeocodeAddress(ctx, "unknown")
		if err != nil || m != nil {
			t.Fatalf("unknown lookup %d: (%+v, %v)", i, m, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server saw %d calls, want 2", n)
	}
	if e := store.entries["unknown"]; e == nil || e.Found {
		t.Errorf("negative result not cached: %+v", e)
	}
}

func TestThrottleSpacing(t *testing.T) {
	th := NewThrottle(0)
	ctx := context.Background()

	start := time.Now()
	if err := th.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := th.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("two waits took %v, want about %v", elapsed, MinInterval)
	}
}

func TestThrottleHonoursContext(t *testing.T) {
	th := NewThrottle(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	_ = th.Wait(ctx)
	cancel()
	if err := th.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestResultsUseSnakeCase(t *testing.T) {
	m, err := json.Marshal(&Match{Latitude: -34.6, Longitude: -58.4, DisplayName: "Obelisco"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(m), `"display_name":"Obelisco"`) {
		t.Errorf("match JSON = %s", m)
	}
	p, err := json.Marshal(&Place{DisplayName: "Obelisco"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(p), `"display_name":"Obelisco"`) {
		t.Errorf("place JSON = %s", p)
	}
}
