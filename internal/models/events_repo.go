package models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
)

const (
	OrderByDate      = "date"
	OrderByCreatedAt = "created_at"

	// maxRowsPerRequest mirrors the PostgREST max-rows setting of the hosted project.
	maxRowsPerRequest = 1000
)

// EventFilter narrows a ListEvents call. DateFrom compares lexicographically
// against the text `date` column.
type EventFilter struct {
	DateFrom  string
	OrderBy   string
	Ascending bool
}

// Range is an inclusive row window, as PostgREST ranges are.
type Range struct {
	From int
	To   int
}

// PageRange returns the rows of zero-based page index for the given size.
func PageRange(page, size int) Range {
	from := page * size
	return Range{From: from, To: from + size - 1}
}

func (r Range) Len() int {
	return r.To - r.From + 1
}

type EventsRepo interface {
	ListEvents(ctx context.Context, filter EventFilter, r Range) ([]*Event, error)
	InsertEvents(ctx context.Context, events []*Event) ([]*Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

func (su *SupabaseRepo) ListEvents(ctx context.Context, filter EventFilter, r Range) ([]*Event, error) {
	if r.From < 0 || r.To < r.From {
		return nil, &StoreError{Op: "list", Message: fmt.Sprintf("invalid range %d-%d", r.From, r.To)}
	}

	query := su.supabaseClient.From(EventsTable).Select("*", "", false)
	if filter.DateFrom != "" {
		query = query.Gte("date", filter.DateFrom)
	}
	if filter.OrderBy != "" {
		query = query.Order(filter.OrderBy, &postgrest.OrderOpts{Ascending: filter.Ascending})
	}

	data, _, err := query.Range(r.From, r.To, "").Execute()
	if err != nil {
		return nil, newStoreError("list", err)
	}

	return decodeEvents("list", data)
}

// decodeEvents reads a PostgREST row array. A null body decodes to an empty slice.
func decodeEvents(op string, data []byte) ([]*Event, error) {
	var events []*Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, &StoreError{Op: op, Message: fmt.Sprintf("failed to unmarshal events: %v", err)}
	}
	if events == nil {
		events = []*Event{}
	}
	return events, nil
}

func (su *SupabaseRepo) InsertEvents(ctx context.Context, events []*Event) ([]*Event, error) {
	if len(events) == 0 {
		return []*Event{}, nil
	}

	rows := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		rows = append(rows, e.insertRow())
	}

	data, _, err := su.supabaseClient.
		From(EventsTable).
		Insert(rows, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, newStoreError("insert", err)
	}

	return decodeEvents("insert", data)
}

func (su *SupabaseRepo) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return &StoreError{Op: "delete", Message: "invalid event id"}
	}

	_, _, err := su.supabaseClient.From(EventsTable).Delete("", "").Eq("id", id).Execute()
	if err != nil {
		return newStoreError("delete", err)
	}
	return nil
}

// ListAllEvents walks the table in maxRowsPerRequest windows until a short
// window comes back.
func ListAllEvents(ctx context.Context, repo EventsRepo, filter EventFilter) ([]*Event, error) {
	var all []*Event
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := PageRange(page, maxRowsPerRequest)
		batch, err := repo.ListEvents(ctx, filter, r)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < r.Len() {
			return all, nil
		}
	}
}
