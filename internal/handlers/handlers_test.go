package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/joshua-takyi/nearby/internal/helpers"
	"github.com/joshua-takyi/nearby/internal/middleware"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
	"github.com/joshua-takyi/nearby/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type sliceRepo struct {
	events  []*models.Event
	deleted []string
	listErr error
}

func (s *sliceRepo) ListEvents(ctx context.Context, filter models.EventFilter, r models.Range) ([]*models.Event, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if r.From >= len(s.events) {
		return []*models.Event{}, nil
	}
	to := r.To + 1
	if to > len(s.events) {
		to = len(s.events)
	}
	return s.events[r.From:to], nil
}

func (s *sliceRepo) InsertEvents(ctx context.Context, events []*models.Event) ([]*models.Event, error) {
	return events, nil
}

func (s *sliceRepo) DeleteEvent(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func eventsN(n int) []*models.Event {
	out := make([]*models.Event, n)
	for i := range out {
		out[i] = &models.Event{ID: uuid.New().String(), Title: fmt.Sprintf("Evento %d", i), Date: "2099-01-01"}
		out[i].SetCoordinates(models.Coordinates{Latitude: -34.6 + float64(i)/100, Longitude: -58.4})
	}
	return out
}

type testServer struct {
	router   *gin.Engine
	registry *session.Registry
}

func newTestServer(t *testing.T, repo models.EventsRepo) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := session.NewRegistry(func() *services.Feed {
		return services.NewFeed(repo, services.DefaultPageSize, logger)
	}, time.Hour, logger)
	t.Cleanup(reg.Close)

	r := gin.New()
	authed := r.Group("/", func(c *gin.Context) {
		c.Set(middleware.UserKey, &helpers.EnhancedClaims{CustomClaims: &helpers.CustomClaims{}, UserID: "user-1"})
		c.Next()
	}, middleware.Sessions(reg, false))
	authed.POST("/location", ReportLocation())
	authed.GET("/location", GetLocation())
	authed.GET("/feed", GetFeed(services.DefaultPageSize))
	authed.POST("/feed/next", NextFeedPage(services.DefaultPageSize))
	authed.GET("/feed/events", FeedEvents())

	return &testServer{router: r, registry: reg}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	HasMore *bool           `json:"has_more"`
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "s1"})

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func TestGoogleAuthURL(t *testing.T) {
	got := GoogleAuthURL("https://abc.supabase.co/", "http://localhost:3000/auth/callback")
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "abc.supabase.co" || u.Path != "/auth/v1/authorize" {
		t.Errorf("unexpected URL %q", got)
	}
	if u.Query().Get("provider") != "google" || u.Query().Get("redirect_to") != "http://localhost:3000/auth/callback" {
		t.Errorf("unexpected query %q", u.RawQuery)
	}
}

func TestGoogleAuthRejectsForeignRedirect(t *testing.T) {
	r := gin.New()
	r.GET("/auth/google", GoogleAuth("https://abc.supabase.co", "http://localhost:3000"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/google?redirect_to=https://evil.example", nil))
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", w.Code)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	if got := loc.Query().Get("redirect_to"); got != "http://localhost:3000/auth/callback" {
		t.Errorf("redirect_to = %q, want the frontend callback", got)
	}
}

func TestGoogleAuthCallbackForwardsErrors(t *testing.T) {
	r := gin.New()
	r.GET("/auth/callback", GoogleAuthCallback("http://localhost:3000"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&error_description=nope", nil))
	if !strings.HasPrefix(w.Header().Get("Location"), "http://localhost:3000/login?") {
		t.Errorf("expected a redirect to login, got %q", w.Header().Get("Location"))
	}
}

func TestFeedPagesUntilExhausted(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{events: eventsN(7)})

	status, env := ts.do(t, http.MethodGet, "/feed", "")
	if status != http.StatusOK || env.HasMore == nil || !*env.HasMore {
		t.Fatalf("page 0: status %d, env %+v", status, env)
	}
	var page []services.EventWithDistance
	if err := json.Unmarshal(env.Data, &page); err != nil || len(page) != 6 {
		t.Fatalf("page 0 should have 6 events, got %d (%v)", len(page), err)
	}

	status, env = ts.do(t, http.MethodPost, "/feed/next", "")
	if status != http.StatusOK || env.HasMore == nil || *env.HasMore || env.Message != services.FeedExhausted.String() {
		t.Fatalf("page 1: status %d, env %+v", status, env)
	}

	status, env = ts.do(t, http.MethodPost, "/feed/next", "")
	if status != http.StatusOK || env.HasMore == nil || *env.HasMore {
		t.Errorf("after exhaustion: status %d, env %+v", status, env)
	}

	_, env = ts.do(t, http.MethodGet, "/feed/events", "")
	var all []services.EventWithDistance
	if err := json.Unmarshal(env.Data, &all); err != nil || len(all) != 7 {
		t.Errorf("expected 7 accumulated events, got %d (%v)", len(all), err)
	}
}

func TestFeedRejectsBadPage(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{})
	if status, _ := ts.do(t, http.MethodGet, "/feed?page=-1", ""); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestLocationReportThenGet(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{events: eventsN(2)})

	status, _ := ts.do(t, http.MethodPost, "/location", `{"latitude":-34.6037,"longitude":-58.3816,"accuracy":12}`)
	if status != http.StatusAccepted {
		t.Fatalf("report: status = %d, want 202", status)
	}

	status, env := ts.do(t, http.MethodGet, "/location", "")
	if status != http.StatusOK {
		t.Fatalf("get: status = %d, env %+v", status, env)
	}
	var data struct {
		Position struct {
			Latitude float64 `json:"latitude"`
		} `json:"position"`
		Prompted bool `json:"prompted"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Position.Latitude != -34.6037 || !data.Prompted {
		t.Errorf("unexpected location payload %+v", data)
	}
}

func TestLocationDeniedIsSticky(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{})

	status, env := ts.do(t, http.MethodPost, "/location", `{"error_code":1}`)
	if status != http.StatusOK || !strings.Contains(string(env.Data), "permission_denied") {
		t.Fatalf("error report: status %d, env %+v", status, env)
	}

	status, env = ts.do(t, http.MethodGet, "/location", "")
	if status != http.StatusForbidden || env.Error != "permission_denied" {
		t.Errorf("get after denial: status %d, env %+v", status, env)
	}
}

func TestLocationReportValidation(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{})

	if status, _ := ts.do(t, http.MethodPost, "/location", `{"latitude":-34.6}`); status != http.StatusBadRequest {
		t.Errorf("missing longitude: status = %d, want 400", status)
	}
	if status, _ := ts.do(t, http.MethodPost, "/location", `{"latitude":123,"longitude":0}`); status != http.StatusBadRequest {
		t.Errorf("out of range latitude: status = %d, want 400", status)
	}
}

func TestDeleteEventTakesOpaqueIDs(t *testing.T) {
	repo := &sliceRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewEventsService(repo, nil, models.Coordinates{Latitude: -34.6037, Longitude: -58.3816}, logger)

	r := gin.New()
	r.DELETE("/events/:id", DeleteEvent(svc))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/events/uuid-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "uuid-1" {
		t.Errorf("deleted = %q, want [uuid-1]", repo.deleted)
	}
}

func TestFeedRejectsSkippedPage(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{events: eventsN(20)})

	if status, _ := ts.do(t, http.MethodGet, "/feed", ""); status != http.StatusOK {
		t.Fatalf("page 0: status = %d", status)
	}
	status, env := ts.do(t, http.MethodGet, "/feed?page=3", "")
	if status != http.StatusBadRequest || env.Success {
		t.Errorf("page 3 after page 0: status %d, env %+v", status, env)
	}
}

func TestFeedStoreErrorRendersEmptyState(t *testing.T) {
	ts := newTestServer(t, &sliceRepo{listErr: &models.StoreError{Op: "list", Code: "503", Message: "unavailable"}})

	status, env := ts.do(t, http.MethodGet, "/feed", "")
	if status != http.StatusBadGateway || env.Success {
		t.Fatalf("status %d, env %+v", status, env)
	}
	if string(env.Data) != "[]" {
		t.Errorf("data = %s, want []", env.Data)
	}
	if env.HasMore == nil || *env.HasMore {
		t.Errorf("has_more = %v, want false", env.HasMore)
	}
	if env.Message != services.FeedIdle.String() {
		t.Errorf("message = %q, want the restored state", env.Message)
	}
}
