package services

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/dmitrijs2005/radsync/internal/metrics"
	"github.com/dmitrijs2005/radsync/internal/models"
)

// CacheStatus reports how a list response was produced. It is empty when the
// collection is not cached at all.
type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
)

// listCacheEntries bounds the number of cached lists. Keys are one per kind
// and modality, so the bound is rarely reached.
const listCacheEntries = 4096

// ListCache keeps whole list results per collection and modality for a
// per-kind TTL. Kinds without a TTL are never cached.
type ListCache struct {
	c   *ristretto.Cache[string, []models.Entity]
	ttl map[models.EntityKind]time.Duration
}

// NewListCache builds a cache for the kinds in ttl with a positive lifetime.
func NewListCache(ttl map[models.EntityKind]time.Duration) (*ListCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []models.Entity]{
		NumCounters:        listCacheEntries * 10,
		MaxCost:            listCacheEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	keep := make(map[models.EntityKind]time.Duration, len(ttl))
	for k, d := range ttl {
		if d > 0 {
			keep[k] = d
		}
	}
	return &ListCache{c: c, ttl: keep}, nil
}

func listCacheKey(kind models.EntityKind, modality string) string {
	if modality == "" {
		modality = "all"
	}
	return string(kind) + ":mod:" + modality
}

// cached reports whether lists of kind go through the cache.
func (l *ListCache) cached(kind models.EntityKind) bool {
	if l == nil {
		return false
	}
	_, ok := l.ttl[kind]
	return ok
}

func (l *ListCache) get(kind models.EntityKind, modality string) ([]models.Entity, bool) {
	rows, ok := l.c.Get(listCacheKey(kind, modality))
	metrics.RecordListCache(string(kind), ok)
	return rows, ok
}

// put stores rows and waits until they are visible to get.
func (l *ListCache) put(kind models.EntityKind, modality string, rows []models.Entity) {
	l.c.SetWithTTL(listCacheKey(kind, modality), rows, 1, l.ttl[kind])
	l.c.Wait()
}

// Close releases the cache's background goroutines.
func (l *ListCache) Close() {
	if l != nil {
		l.c.Close()
	}
}
