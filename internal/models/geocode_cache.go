package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const GeocodeCacheColName = "geocode_cache"

// GeocodeCacheEntry memoizes one forward lookup. Found=false stores a miss so
// that repeated seeds of an unknown venue do not hit the external service.
type GeocodeCacheEntry struct {
	Query       string    `bson:"_id" json:"query"`
	Found       bool      `bson:"found" json:"found"`
	Latitude    float64   `bson:"latitude" json:"latitude"`
	Longitude   float64   `bson:"longitude" json:"longitude"`
	DisplayName string    `bson:"display_name" json:"display_name"`
	CachedAt    time.Time `bson:"cached_at" json:"cached_at"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"` // TTL index field
}

func (mdb *MongodbRepo) GetGeocode(ctx context.Context, query string) (*GeocodeCacheEntry, error) {
	col, err := mdb.GetCollection(ctx, GeocodeCacheColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %w", err)
	}

	var entry GeocodeCacheEntry
	err = col.FindOne(ctx, bson.M{"_id": query}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding geocode cache entry: %w", err)
	}
	// The TTL monitor runs once a minute, so expired rows can still be read.
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

func (mdb *MongodbRepo) PutGeocode(ctx context.Context, entry *GeocodeCacheEntry) error {
	col, err := mdb.GetCollection(ctx, GeocodeCacheColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := col.ReplaceOne(ctx, bson.M{"_id": entry.Query}, entry, opts); err != nil {
		return fmt.Errorf("error upserting geocode cache entry: %w", err)
	}
	return nil
}

func geocodeCacheIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// TTL index - documents expire at the time stored in expires_at
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(0).
				SetName("expires_at_ttl"),
		},
	}
}

// EnsureIndexes creates the indexes for every collection this repo owns.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	byCollection := map[string][]mongo.IndexModel{
		DedupeAuditColName:  dedupeAuditIndexes(),
		GeocodeCacheColName: geocodeCacheIndexes(),
	}
	for name, indexes := range byCollection {
		col, err := mdb.GetCollection(ctx, name)
		if err != nil {
			return fmt.Errorf("error getting collection: %w", err)
		}
		if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("error creating indexes on %s: %w", name, err)
		}
	}
	return nil
}
