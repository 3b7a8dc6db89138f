// Package session holds the per-visitor state the API keeps between
// requests: a geolocation accessor fed by the client and a feed.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joshua-takyi/nearby/internal/geolocation"
	"github.com/joshua-takyi/nearby/internal/metrics"
	"github.com/joshua-takyi/nearby/internal/services"
)

const (
	CookieName = "session_id"

	reloadTimeout = 15 * time.Second
)

type Session struct {
	ID       string
	UserID   string
	Platform *geolocation.ReportedPlatform
	Accessor *geolocation.Accessor
	Feed     *services.Feed

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	watch  *geolocation.WatchHandle

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
	reloads  sync.WaitGroup
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// onFix resets the feed around the new position and reloads its first page.
func (s *Session) onFix(pos geolocation.Position) {
	s.Feed.SetLocation(pos)

	// A watcher snapshot can fire after end has started; Add must not race Wait.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.reloads.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.reloads.Done()
		ctx, cancel := context.WithTimeout(s.ctx, reloadTimeout)
		defer cancel()
		_, err := s.Feed.LoadPage(ctx, 0)
		switch {
		case err == nil,
			errors.Is(err, services.ErrStaleResponse),
			errors.Is(err, services.ErrLoadInFlight),
			errors.Is(err, context.Canceled):
		default:
			s.logger.Warn("feed reload after location change failed", "error", err)
		}
	}()
}

func (s *Session) end() {
	s.Accessor.ClearWatch(s.watch)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.reloads.Wait()
}

// Registry owns every live session. Sessions idle longer than the expiry
// are ended by Sweep.
type Registry struct {
	newFeed func() *services.Feed
	idle    time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(newFeed func() *services.Feed, idle time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		newFeed:  newFeed,
		idle:     idle,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the session for id, creating it on first use. A session
// that belongs to another user is ended and replaced.
func (r *Registry) Acquire(id, userID string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.UserID != userID {
		delete(r.sessions, id)
		r.mu.Unlock()
		s.end()
		r.mu.Lock()
		ok = false
	}
	if !ok {
		s = r.create(id, userID)
		r.sessions[id] = s
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	s.touch(r.now())
	return s
}

func (r *Registry) create(id, userID string) *Session {
	platform := geolocation.NewReportedPlatform()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       id,
		UserID:   userID,
		Platform: platform,
		Accessor: geolocation.NewAccessor(platform, geolocation.DefaultOptions),
		Feed:     r.newFeed(),
		logger:   r.logger.With("session_id", id),
		ctx:      ctx,
		cancel:   cancel,
	}

	watch, err := s.Accessor.Watch(s.onFix, func(err error) {
		s.logger.Info("client reported geolocation error", "error", err)
	})
	if err != nil {
		s.logger.Warn("failed to watch position", "error", err)
	}
	s.watch = watch
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// End releases the session's watch and forgets it. Ending an unknown id
// does nothing.
func (r *Registry) End(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if ok {
		s.end()
	}
}

// Sweep ends every session idle past the expiry and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, s := range expired {
		s.end()
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then ends all sessions.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, s := range all {
		s.end()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
