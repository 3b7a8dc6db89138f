package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/joshua-takyi/nearby/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newEvent(title string, createdAt time.Time) *models.Event {
	return &models.Event{ID: uuid.New().String(), Title: title, CreatedAt: createdAt}
}

func TestRemoveDuplicatesKeepsNewest(t *testing.T) {
	older := newEvent("Concierto X", mustDate("2025-01-01"))
	newer := newEvent("Concierto X", mustDate("2025-02-01"))
	other := newEvent("Obra Y", mustDate("2025-01-15"))

	// Store order deliberately differs from created_at order.
	repo := &memoryEventsRepo{events: []*models.Event{older, other, newer}}
	audit := &memoryAuditRepo{}
	svc := NewDedupeService(repo, audit, quietLogger())

	res := svc.RemoveDuplicates(context.Background(), "test")
	if !res.Success || res.DeletedCount != 1 || res.FailedCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(repo.events) != 2 {
		t.Fatalf("expected 2 remaining events, got %d", len(repo.events))
	}
	for _, e := range repo.events {
		if e.ID == older.ID {
			t.Error("older duplicate survived")
		}
	}
	if len(audit.entries) != 1 || audit.entries[0].Groups[0].KeptID != newer.ID {
		t.Errorf("audit entry not recorded correctly: %+v", audit.entries)
	}
}

func TestRemoveDuplicatesNothingToProcess(t *testing.T) {
	svc := NewDedupeService(&memoryEventsRepo{}, nil, quietLogger())
	res := svc.RemoveDuplicates(context.Background(), "test")
	if !res.Success || res.Message != MsgNothingToProcess || res.DeletedCount != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRemoveDuplicatesNoDuplicates(t *testing.T) {
	repo := &memoryEventsRepo{events: []*models.Event{
		newEvent("A", mustDate("2025-01-01")),
		newEvent("a", mustDate("2025-01-02")),
		newEvent("B", mustDate("2025-01-03")),
	}}
	audit := &memoryAuditRepo{}
	res := NewDedupeService(repo, audit, quietLogger()).RemoveDuplicates(context.Background(), "test")

	if !res.Success || res.Message != MsgNoDuplicates {
		t.Errorf("unexpected result %+v", res)
	}
	if len(repo.events) != 3 {
		t.Errorf("store changed: %d events", len(repo.events))
	}
	if len(audit.entries) != 0 {
		t.Error("clean run should not be audited")
	}
}

func TestRemoveDuplicatesFetchFailure(t *testing.T) {
	repo := &memoryEventsRepo{listErr: &models.StoreError{Op: "list", Code: "PGRST301", Message: "JWT expired"}}
	res := NewDedupeService(repo, nil, quietLogger()).RemoveDuplicates(context.Background(), "test")
	if res.Success || res.Error == "" {
		t.Errorf("expected failed result, got %+v", res)
	}
}

func TestRemoveDuplicatesDeleteFailureDoesNotAbort(t *testing.T) {
	a1 := newEvent("A", mustDate("2025-01-03"))
	a2 := newEvent("A", mustDate("2025-01-02"))
	a3 := newEvent("A", mustDate("2025-01-01"))
	repo := &memoryEventsRepo{
		events:     []*models.Event{a1, a2, a3},
		failDelete: map[string]bool{a2.ID: true},
	}
	audit := &memoryAuditRepo{err: errors.New("mongo down")}

	res := NewDedupeService(repo, audit, quietLogger()).RemoveDuplicates(context.Background(), "test")
	if !res.Success || res.DeletedCount != 1 || res.FailedCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(repo.events) != 2 {
		t.Errorf("expected a1 and a2 to remain, got %d events", len(repo.events))
	}
}

func TestRemoveDuplicatesIsIdempotent(t *testing.T) {
	repo := &memoryEventsRepo{}
	for i := 0; i < 10; i++ {
		repo.events = append(repo.events, newEvent(fmt.Sprintf("T%d", i%3), mustDate("2025-01-01").Add(time.Duration(i)*time.Hour)))
	}
	svc := NewDedupeService(repo, nil, quietLogger())

	first := svc.RemoveDuplicates(context.Background(), "test")
	if first.DeletedCount != 7 {
		t.Fatalf("first run deleted %d, want 7", first.DeletedCount)
	}
	second := svc.RemoveDuplicates(context.Background(), "test")
	if second.DeletedCount != 0 || second.Message != MsgNoDuplicates {
		t.Errorf("second run = %+v", second)
	}
}

func TestPlanDuplicatesTiesKeepStoreOrder(t *testing.T) {
	ts := mustDate("2025-03-01")
	first := newEvent("Same", ts)
	second := newEvent("Same", ts)
	groups := PlanDuplicates([]*models.Event{first, second})
	if len(groups) != 1 || groups[0].KeptID != first.ID || groups[0].DeletedIDs[0] != second.ID {
		t.Errorf("unexpected plan %+v", groups)
	}
}

func buildEvents(titleIdx []int, seed int64) []*models.Event {
	base := mustDate("2025-01-01")
	events := make([]*models.Event, len(titleIdx))
	for i, ti := range titleIdx {
		// Small modulus so created_at ties occur.
		offset := (int64(i)*seed + seed) % 7
		events[i] = newEvent(fmt.Sprintf("title-%d", ti), base.Add(time.Duration(offset)*time.Hour))
	}
	return events
}

func TestProperty_Dedupe(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every title survives exactly once", prop.ForAll(
		func(titleIdx []int, seed int64) bool {
			repo := &memoryEventsRepo{events: buildEvents(titleIdx, seed)}
			distinct := map[string]bool{}
			for _, e := range repo.events {
				distinct[e.Title] = true
			}

			res := NewDedupeService(repo, nil, quietLogger()).RemoveDuplicates(context.Background(), "prop")
			if !res.Success || res.DeletedCount != len(titleIdx)-len(distinct) {
				return false
			}
			remaining := repo.titles()
			if len(remaining) != len(distinct) {
				return false
			}
			for _, n := range remaining {
				if n != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.Int64Range(1, 97),
	))

	properties.Property("kept event is the newest of its title", prop.ForAll(
		func(titleIdx []int, seed int64) bool {
			events := buildEvents(titleIdx, seed)
			newest := map[string]time.Time{}
			for _, e := range events {
				if e.CreatedAt.After(newest[e.Title]) {
					newest[e.Title] = e.CreatedAt
				}
			}
			repo := &memoryEventsRepo{events: events}
			NewDedupeService(repo, nil, quietLogger()).RemoveDuplicates(context.Background(), "prop")
			for _, e := range repo.events {
				if !e.CreatedAt.Equal(newest[e.Title]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.Int64Range(1, 97),
	))

	properties.Property("second run deletes nothing", prop.ForAll(
		func(titleIdx []int, seed int64) bool {
			repo := &memoryEventsRepo{events: buildEvents(titleIdx, seed)}
			svc := NewDedupeService(repo, nil, quietLogger())
			svc.RemoveDuplicates(context.Background(), "prop")
			before := len(repo.events)
			again := svc.RemoveDuplicates(context.Background(), "prop")
			return again.Success && again.DeletedCount == 0 && len(repo.events) == before
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.Int64Range(1, 97),
	))

	properties.TestingRun(t)
}
