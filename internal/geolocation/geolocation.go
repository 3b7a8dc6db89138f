// Package geolocation wraps a permission-gated position source behind a
// request/watch interface with a fixed error taxonomy.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrPermissionDenied    = errors.New("user denied the request for geolocation")
	ErrPositionUnavailable = errors.New("location information is unavailable")
	ErrTimeout             = errors.New("the request to get user location timed out")
	ErrUnsupported         = errors.New("geolocation is not supported")
)

// Platform error codes as reported by browsers, plus 0 for a client without
// a geolocation API.
const (
	CodeUnsupported         = 0
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// FromCode maps a platform error code onto the taxonomy.
func FromCode(code int) error {
	switch code {
	case CodeUnsupported:
		return ErrUnsupported
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodePositionUnavailable:
		return ErrPositionUnavailable
	case CodeTimeout:
		return ErrTimeout
	default:
		return fmt.Errorf("%w: unknown platform error code %d", ErrPositionUnavailable, code)
	}
}

// Position is a single fix. It lives only as long as the session that
// requested it and is never written to the event store.
type Position struct {
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	AccuracyMeters    float64 `json:"accuracy"`
	CapturedAtEpochMs int64   `json:"timestamp"`
}

func (p Position) CapturedAt() time.Time {
	return time.UnixMilli(p.CapturedAtEpochMs)
}

func (p Position) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180 &&
		p.AccuracyMeters >= 0
}

type Options struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

// DefaultOptions asks for a precise fix, waits at most 15s and accepts a
// cached fix up to 30s old.
var DefaultOptions = Options{
	EnableHighAccuracy: true,
	Timeout:            15 * time.Second,
	MaximumAge:         30 * time.Second,
}

// Platform is the native primitive the Accessor drives.
type Platform interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
	WatchPosition(opts Options, onUpdate func(Position), onError func(error)) (int, error)
	ClearWatch(id int)
}

// Accessor is a per-session handle on a Platform. It is not shared between
// sessions; the owner closes it when the session ends.
type Accessor struct {
	platform Platform
	opts     Options

	mu       sync.Mutex
	current  *Position
	prompted bool
	active   *WatchHandle
}

// NewAccessor returns an accessor over p. A nil platform yields an accessor
// that answers every request with ErrUnsupported.
func NewAccessor(p Platform, opts Options) *Accessor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	return &Accessor{platform: p, opts: opts}
}

func (a *Accessor) Supported() bool {
	return a.platform != nil
}

// Prompted reports whether a position has been requested at least once,
// which is when the client shows its permission prompt.
func (a *Accessor) Prompted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompted
}

// Current returns the last fix delivered through this accessor.
func (a *Accessor) Current() *Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	p := *a.current
	return &p
}

func (a *Accessor) GetCurrentPosition(ctx context.Context) (Position, error) {
	if a.platform == nil {
		return Position{}, ErrUnsupported
	}
	a.markPrompted()

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	pos, err := a.platform.CurrentPosition(ctx, a.opts)
	if err != nil {
		return Position{}, normalize(err)
	}
	a.setCurrent(pos)
	return pos, nil
}

// WatchHandle is returned by Watch. Releasing it more than once is a no-op.
type WatchHandle struct {
	id      int
	once    sync.Once
	release func()
}

func (h *WatchHandle) ID() int {
	return h.id
}

// Watch subscribes to continuous updates. A previous watch on the same
// accessor is released first.
func (a *Accessor) Watch(onUpdate func(Position), onError func(error)) (*WatchHandle, error) {
	if a.platform == nil {
		if onError != nil {
			onError(ErrUnsupported)
		}
		return nil, ErrUnsupported
	}
	a.markPrompted()
	a.ClearWatch(nil)

	id, err := a.platform.WatchPosition(a.opts,
		func(p Position) {
			a.setCurrent(p)
			if onUpdate != nil {
				onUpdate(p)
			}
		},
		func(err error) {
			if onError != nil {
				onError(normalize(err))
			}
		},
	)
	if err != nil {
		return nil, normalize(err)
	}

	h := &WatchHandle{id: id}
	h.release = func() {
		a.platform.ClearWatch(id)
		a.mu.Lock()
		if a.active == h {
			a.active = nil
		}
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.active = h
	a.mu.Unlock()
	return h, nil
}

// ClearWatch releases h, or the active watch when h is nil. Clearing when
// nothing is watched does nothing.
func (a *Accessor) ClearWatch(h *WatchHandle) {
	if h == nil {
		a.mu.Lock()
		h = a.active
		a.mu.Unlock()
	}
	if h == nil {
		return
	}
	h.once.Do(h.release)
}

func (a *Accessor) Watching() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}

func (a *Accessor) markPrompted() {
	a.mu.Lock()
	a.prompted = true
	a.mu.Unlock()
}

func (a *Accessor) setCurrent(p Position) {
	a.mu.Lock()
	a.current = &p
	a.mu.Unlock()
}

func normalize(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrPositionUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUnsupported):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
}
