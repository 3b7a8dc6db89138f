package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/joshua-takyi/nearby/internal/metrics"
	"github.com/joshua-takyi/nearby/internal/models"
)

const (
	MsgNothingToProcess = "nothing to process"
	MsgNoDuplicates     = "no duplicates"
	MsgDedupeFailed     = "failed to remove duplicates"
)

type DedupeResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Scanned      int    `json:"scanned"`
	DeletedCount int    `json:"deleted_count"`
	FailedCount  int    `json:"failed_count"`
	Error        string `json:"error,omitempty"`
}

type DedupeService struct {
	eventsRepo models.EventsRepo
	auditRepo  models.DedupeAuditRepo
	logger     *slog.Logger
}

// NewDedupeService builds the engine. auditRepo may be nil.
func NewDedupeService(eventsRepo models.EventsRepo, auditRepo models.DedupeAuditRepo, logger *slog.Logger) *DedupeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupeService{
		eventsRepo: eventsRepo,
		auditRepo:  auditRepo,
		logger:     logger,
	}
}

// RemoveDuplicates keeps the newest event of every title and deletes the
// rest one at a time. Only a failed fetch makes the run unsuccessful.
func (ds *DedupeService) RemoveDuplicates(ctx context.Context, triggeredBy string) *DedupeResult {
	events, err := models.ListAllEvents(ctx, ds.eventsRepo, models.EventFilter{
		OrderBy:   models.OrderByCreatedAt,
		Ascending: false,
	})
	if err != nil {
		ds.logger.Error("failed to fetch events for dedupe", "error", err)
		metrics.DedupeRuns.WithLabelValues("error").Inc()
		return &DedupeResult{Success: false, Message: MsgDedupeFailed, Error: err.Error()}
	}

	if len(events) == 0 {
		metrics.DedupeRuns.WithLabelValues("empty").Inc()
		return &DedupeResult{Success: true, Message: MsgNothingToProcess}
	}

	groups := PlanDuplicates(events)
	if len(groups) == 0 {
		metrics.DedupeRuns.WithLabelValues("clean").Inc()
		return &DedupeResult{Success: true, Message: MsgNoDuplicates, Scanned: len(events)}
	}

	result := &DedupeResult{Success: true, Scanned: len(events)}
	for i := range groups {
		var deleted []string
		for _, id := range groups[i].DeletedIDs {
			if err := ds.eventsRepo.DeleteEvent(ctx, id); err != nil {
				ds.logger.Error("failed to delete duplicate event",
					"event_id", id,
					"title", groups[i].Title,
					"error", err,
				)
				groups[i].FailedIDs = append(groups[i].FailedIDs, id)
				result.FailedCount++
				continue
			}
			deleted = append(deleted, id)
			result.DeletedCount++
		}
		groups[i].DeletedIDs = deleted
	}

	metrics.DedupeDeleted.Add(float64(result.DeletedCount))
	metrics.DedupeDeleteFailures.Add(float64(result.FailedCount))
	metrics.DedupeRuns.WithLabelValues("deleted").Inc()

	result.Message = fmt.Sprintf("removed %d duplicate events", result.DeletedCount)
	if result.FailedCount > 0 {
		result.Message += fmt.Sprintf(" (%d failed)", result.FailedCount)
	}

	ds.logger.Info("dedupe finished",
		"scanned", result.Scanned,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
	)

	ds.writeAudit(ctx, triggeredBy, result, groups)
	return result
}

func (ds *DedupeService) writeAudit(ctx context.Context, triggeredBy string, result *DedupeResult, groups []models.DedupeGroup) {
	if ds.auditRepo == nil {
		return
	}
	entry := &models.DedupeAuditEntry{
		TriggeredBy:  triggeredBy,
		Scanned:      result.Scanned,
		DeletedCount: result.DeletedCount,
		FailedCount:  result.FailedCount,
		Groups:       groups,
	}
	if err := ds.auditRepo.InsertDedupeAudit(ctx, entry); err != nil {
		ds.logger.Warn("failed to write dedupe audit entry", "error", err)
	}
}

// History returns the most recent audit entries, newest first.
func (ds *DedupeService) History(ctx context.Context, limit int64) ([]*models.DedupeAuditEntry, error) {
	if ds.auditRepo == nil {
		return []*models.DedupeAuditEntry{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return ds.auditRepo.ListDedupeAudits(ctx, limit)
}

// PlanDuplicates groups events by exact title. Events are ordered newest
// first by created_at (ties keep input order); the first of each title is
// kept and the rest are listed for deletion. Titles without duplicates are
// left out.
func PlanDuplicates(events []*models.Event) []models.DedupeGroup {
	ordered := make([]*models.Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			ordered = append(ordered, e)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	index := make(map[string]int)
	var groups []models.DedupeGroup
	for _, e := range ordered {
		i, seen := index[e.Title]
		if !seen {
			index[e.Title] = len(groups)
			groups = append(groups, models.DedupeGroup{Title: e.Title, KeptID: e.ID})
			continue
		}
		groups[i].DeletedIDs = append(groups[i].DeletedIDs, e.ID)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.DeletedIDs) > 0 {
			out = append(out, g)
		}
	}
	return out
}
