package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joshua-takyi/nearby/internal/models"
)

// memoryEventsRepo is an in-memory EventsRepo that orders and ranges rows
// the way the hosted store does.
type memoryEventsRepo struct {
	mu         sync.Mutex
	events     []*models.Event
	listCalls  int
	listErr    error
	failDelete map[string]bool
	lastFilter models.EventFilter
	lastRange  models.Range
}

func (m *memoryEventsRepo) ListEvents(ctx context.Context, filter models.EventFilter, r models.Range) ([]*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.lastFilter = filter
	m.lastRange = r
	if m.listErr != nil {
		return nil, m.listErr
	}

	rows := make([]*models.Event, 0, len(m.events))
	for _, e := range m.events {
		if filter.DateFrom != "" && strings.Compare(e.Date, filter.DateFrom) < 0 {
			continue
		}
		rows = append(rows, e)
	}
	switch filter.OrderBy {
	case models.OrderByCreatedAt:
		sort.SliceStable(rows, func(i, j int) bool {
			if filter.Ascending {
				return rows[i].CreatedAt.Before(rows[j].CreatedAt)
			}
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		})
	case models.OrderByDate:
		sort.SliceStable(rows, func(i, j int) bool {
			if filter.Ascending {
				return rows[i].Date < rows[j].Date
			}
			return rows[i].Date > rows[j].Date
		})
	}

	if r.From >= len(rows) {
		return []*models.Event{}, nil
	}
	to := r.To + 1
	if to > len(rows) {
		to = len(rows)
	}
	return append([]*models.Event(nil), rows[r.From:to]...), nil
}

func (m *memoryEventsRepo) InsertEvents(ctx context.Context, events []*models.Event) ([]*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		m.events = append(m.events, e)
	}
	return events, nil
}

func (m *memoryEventsRepo) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete[id] {
		return &models.StoreError{Op: "delete", Code: "500", Message: "boom"}
	}
	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memoryEventsRepo) titles() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, e := range m.events {
		out[e.Title]++
	}
	return out
}

type memoryAuditRepo struct {
	entries []*models.DedupeAuditEntry
	err     error
}

func (m *memoryAuditRepo) InsertDedupeAudit(ctx context.Context, entry *models.DedupeAuditEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAuditRepo) ListDedupeAudits(ctx context.Context, limit int64) ([]*models.DedupeAuditEntry, error) {
	return m.entries, nil
}
