package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DedupeAuditColName = "dedupe_audit"

// DedupeGroup records one title that had more than one row.
type DedupeGroup struct {
	Title      string      `bson:"title" json:"title"`
	KeptID     string   `bson:"kept_id" json:"kept_id"`
	DeletedIDs []string `bson:"deleted_ids" json:"deleted_ids"`
	FailedIDs  []string `bson:"failed_ids,omitempty" json:"failed_ids,omitempty"`
}

type DedupeAuditEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID        uuid.UUID          `bson:"run_id" json:"run_id"`
	TriggeredBy  string             `bson:"triggered_by" json:"triggered_by"`
	Scanned      int                `bson:"scanned" json:"scanned"`
	DeletedCount int                `bson:"deleted_count" json:"deleted_count"`
	FailedCount  int                `bson:"failed_count" json:"failed_count"`
	Groups       []DedupeGroup      `bson:"groups" json:"groups"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

type DedupeAuditRepo interface {
	InsertDedupeAudit(ctx context.Context, entry *DedupeAuditEntry) error
	ListDedupeAudits(ctx context.Context, limit int64) ([]*DedupeAuditEntry, error)
}

func (d *DedupeAuditEntry) BeforeCreate() {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if d.RunID == uuid.Nil {
		d.RunID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
}

func (mdb *MongodbRepo) InsertDedupeAudit(ctx context.Context, entry *DedupeAuditEntry) error {
	col, err := mdb.GetCollection(ctx, DedupeAuditColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %w", err)
	}

	entry.BeforeCreate()
	if _, err := col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert dedupe audit entry: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) ListDedupeAudits(ctx context.Context, limit int64) ([]*DedupeAuditEntry, error) {
	col, err := mdb.GetCollection(ctx, DedupeAuditColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %w", err)
	}
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding dedupe audits: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []*DedupeAuditEntry{}
	for cursor.Next(ctx) {
		var entry DedupeAuditEntry
		if err := cursor.Decode(&entry); err != nil {
			return nil, fmt.Errorf("error decoding dedupe audit: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return entries, nil
}

func dedupeAuditIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_idx"),
		},
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("run_id_unique"),
		},
	}
}
