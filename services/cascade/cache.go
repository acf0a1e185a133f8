package cascade

import (
	"fmt"
	"sync"
	"time"

	"magnetar/config"
	"magnetar/models"
)

// ResultTier records which level of the cascade produced a cached result set.
type ResultTier string

const (
	TierLocal  ResultTier = "local"
	TierRemote ResultTier = "remote"
)

type cacheEntry struct {
	records  []models.MagnetRecord
	expiry   time.Time
	tier     ResultTier
	language string
}

// ResultCache is a TTL-keyed cache of final result sets. TTLs adapt to the
// content type, the result count and the originating tier. Writers use
// last-writer-wins semantics: entries are idempotent derivations of the same
// upstream data.
type ResultCache struct {
	cfg config.CacheSettings

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewResultCache(cfg config.CacheSettings) *ResultCache {
	return &ResultCache{cfg: cfg, entries: make(map[string]cacheEntry)}
}

// Key builds the cache key from the full query shape.
func (c *ResultCache) Key(baseID string, contentType models.ContentType, season, episode int) string {
	return fmt.Sprintf("%s|%s|%d|%d", baseID, contentType, season, episode)
}

// Get returns a live cached result set. Expired entries and zero-record
// negative markers are evicted on sight: a stale empty result must never mask
// the later arrival of new remote data.
func (c *ResultCache) Get(key string) ([]models.MagnetRecord, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiry) || len(entry.records) == 0 {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.records, true
}

// Put stores a result set with an adaptive TTL.
func (c *ResultCache) Put(key string, records []models.MagnetRecord, contentType models.ContentType, tier ResultTier, language string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		records:  records,
		expiry:   time.Now().Add(c.ttlFor(contentType, len(records), tier)),
		tier:     tier,
		language: language,
	}
}

// PutNegative stores a short-lived zero-record marker after a fully exhausted
// cascade, to dampen immediate repeat storms. It is advisory: Get never
// trusts it.
func (c *ResultCache) PutNegative(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		expiry: time.Now().Add(time.Duration(c.cfg.NegativeTTLSec) * time.Second),
	}
}

// Flush drops every entry.
func (c *ResultCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the live entry count (expired entries included until touched).
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ttlFor computes the adaptive TTL: movies change availability slowly,
// series faster; larger result sets are safer to cache longer; locally
// indexed results are trusted twice as long as fresh remote ones.
func (c *ResultCache) ttlFor(contentType models.ContentType, count int, tier ResultTier) time.Duration {
	var base time.Duration
	switch contentType {
	case models.TypeMovie:
		base = time.Duration(c.cfg.MovieTTLMin) * time.Minute
	case models.TypeAnime:
		base = time.Duration(c.cfg.AnimeTTLMin) * time.Minute
	default:
		base = time.Duration(c.cfg.SeriesTTLMin) * time.Minute
	}
	switch {
	case count >= 10:
		base = base * 3 / 2
	case count < 3:
		base = base / 2
	}
	if tier == TierLocal {
		base *= 2
	}
	return base
}
