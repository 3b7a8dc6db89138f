package geolocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type watcher struct {
	onUpdate func(Position)
	onError  func(error)
}

// ReportedPlatform is a Platform fed by the web client: the browser pushes
// each fix (or its error code) over HTTP and the server side waits on it.
type ReportedPlatform struct {
	now func() time.Time

	mu       sync.Mutex
	last     *Position
	lastErr  error
	waiters  map[chan Position]chan error
	watchers map[int]watcher
	nextID   int
}

func NewReportedPlatform() *ReportedPlatform {
	return &ReportedPlatform{
		now:      time.Now,
		waiters:  make(map[chan Position]chan error),
		watchers: make(map[int]watcher),
	}
}

// Report delivers a fix to pending requests and every watcher.
func (p *ReportedPlatform) Report(pos Position) error {
	if !pos.Valid() {
		return fmt.Errorf("invalid position %v,%v", pos.Latitude, pos.Longitude)
	}
	if pos.CapturedAtEpochMs == 0 {
		pos.CapturedAtEpochMs = p.now().UnixMilli()
	}

	p.mu.Lock()
	p.last = &pos
	p.lastErr = nil
	waiters := p.waiters
	p.waiters = make(map[chan Position]chan error)
	watchers := p.snapshotWatchers()
	p.mu.Unlock()

	for posCh := range waiters {
		posCh <- pos
	}
	for _, w := range watchers {
		w.onUpdate(pos)
	}
	return nil
}

// ReportError delivers a platform error code to pending requests and watchers.
func (p *ReportedPlatform) ReportError(code int) error {
	err := FromCode(code)

	p.mu.Lock()
	p.lastErr = err
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported) {
		p.last = nil
	}
	waiters := p.waiters
	p.waiters = make(map[chan Position]chan error)
	watchers := p.snapshotWatchers()
	p.mu.Unlock()

	for _, errCh := range waiters {
		errCh <- err
	}
	for _, w := range watchers {
		w.onError(err)
	}
	return err
}

func (p *ReportedPlatform) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	p.mu.Lock()
	if p.last != nil && p.now().Sub(p.last.CapturedAt()) <= opts.MaximumAge {
		pos := *p.last
		p.mu.Unlock()
		return pos, nil
	}
	// Denial and missing support stick until the client reports a fix.
	if errors.Is(p.lastErr, ErrPermissionDenied) || errors.Is(p.lastErr, ErrUnsupported) {
		err := p.lastErr
		p.mu.Unlock()
		return Position{}, err
	}
	posCh := make(chan Position, 1)
	errCh := make(chan error, 1)
	p.waiters[posCh] = errCh
	p.mu.Unlock()

	select {
	case pos := <-posCh:
		return pos, nil
	case err := <-errCh:
		return Position{}, err
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, posCh)
		p.mu.Unlock()
		// A report may have raced the deadline.
		select {
		case pos := <-posCh:
			return pos, nil
		case err := <-errCh:
			return Position{}, err
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Position{}, ErrTimeout
		}
		return Position{}, ctx.Err()
	}
}

func (p *ReportedPlatform) WatchPosition(opts Options, onUpdate func(Position), onError func(error)) (int, error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.watchers[id] = watcher{onUpdate: onUpdate, onError: onError}
	p.mu.Unlock()
	return id, nil
}

func (p *ReportedPlatform) ClearWatch(id int) {
	p.mu.Lock()
	delete(p.watchers, id)
	p.mu.Unlock()
}

// Watchers returns the number of live subscriptions.
func (p *ReportedPlatform) Watchers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}

func (p *ReportedPlatform) snapshotWatchers() []watcher {
	out := make([]watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		out = append(out, w)
	}
	return out
}
