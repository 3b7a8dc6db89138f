package geocoding

import (
	"context"
	"time"

	"github.com/joshua-takyi/nearby/internal/models"
)

type cacheStore interface {
	GetGeocode(ctx context.Context, query string) (*models.GeocodeCacheEntry, error)
	PutGeocode(ctx context.Context, entry *models.GeocodeCacheEntry) error
}

// StoreCache adapts the Mongo geocode collection to Cache.
type StoreCache struct {
	store cacheStore
	ttl   time.Duration
	now   func() time.Time
}

func NewStoreCache(store cacheStore, ttl time.Duration) *StoreCache {
	return &StoreCache{store: store, ttl: ttl, now: time.Now}
}

func (c *StoreCache) GetMatch(ctx context.Context, query string) (*Match, bool, error) {
	entry, err := c.store.GetGeocode(ctx, query)
	if err != nil || entry == nil {
		return nil, false, err
	}
	if !entry.Found {
		return nil, true, nil
	}
	return &Match{
		Latitude:    entry.Latitude,
		Longitude:   entry.Longitude,
		DisplayName: entry.DisplayName,
	}, true, nil
}

func (c *StoreCache) PutMatch(ctx context.Context, query string, m *Match) error {
	now := c.now().UTC()
	entry := &models.GeocodeCacheEntry{
		Query:     query,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	if m != nil {
		entry.Found = true
		entry.Latitude = m.Latitude
		entry.Longitude = m.Longitude
		entry.DisplayName = m.DisplayName
	}
	return c.store.PutGeocode(ctx, entry)
}
