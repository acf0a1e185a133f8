package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"magnetar/config"
	"magnetar/models"
)

func testCacheSettings() config.CacheSettings {
	return config.DefaultSettings().Cache
}

func TestCachePutGet(t *testing.T) {
	c := NewResultCache(testCacheSettings())
	key := c.Key("tt0111161", models.TypeMovie, 0, 0)
	records := []models.MagnetRecord{record("tt0111161", 1, 40)}

	c.Put(key, records, models.TypeMovie, TierLocal, "spanish")
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, records, got)

	_, ok = c.Get(c.Key("tt0111161", models.TypeMovie, 1, 2))
	require.False(t, ok, "episode-scoped key must be distinct")
}

func TestCacheExpiredEntryEvicted(t *testing.T) {
	c := NewResultCache(testCacheSettings())
	key := c.Key("tt0111161", models.TypeMovie, 0, 0)
	c.entries[key] = cacheEntry{
		records: []models.MagnetRecord{record("tt0111161", 1, 40)},
		expiry:  time.Now().Add(-time.Second),
	}

	_, ok := c.Get(key)
	require.False(t, ok)
	require.Zero(t, c.Len(), "expired entry must be dropped on read")
}

func TestCacheNegativeMarkerNeverServed(t *testing.T) {
	c := NewResultCache(testCacheSettings())
	key := c.Key("tt9999999999", models.TypeMovie, 0, 0)

	c.PutNegative(key)
	require.Equal(t, 1, c.Len())

	// The marker dampens nothing on the read path: it reads as a miss and
	// is evicted, so fresh remote data is never masked.
	_, ok := c.Get(key)
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestCacheTTLAdaptsToTypeCountAndTier(t *testing.T) {
	c := NewResultCache(config.CacheSettings{MovieTTLMin: 240, SeriesTTLMin: 30, AnimeTTLMin: 60})

	tests := []struct {
		name        string
		contentType models.ContentType
		count       int
		tier        ResultTier
		want        time.Duration
	}{
		{"movie base", models.TypeMovie, 5, TierRemote, 240 * time.Minute},
		{"series base", models.TypeSeries, 5, TierRemote, 30 * time.Minute},
		{"anime base", models.TypeAnime, 5, TierRemote, 60 * time.Minute},
		{"rich result extends", models.TypeMovie, 10, TierRemote, 360 * time.Minute},
		{"sparse result shortens", models.TypeMovie, 2, TierRemote, 120 * time.Minute},
		{"local tier doubles", models.TypeSeries, 5, TierLocal, 60 * time.Minute},
		{"local rich compounds", models.TypeSeries, 12, TierLocal, 90 * time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, c.ttlFor(tc.contentType, tc.count, tc.tier))
		})
	}
}

func TestCacheFlush(t *testing.T) {
	c := NewResultCache(testCacheSettings())
	c.Put(c.Key("tt1", models.TypeMovie, 0, 0), []models.MagnetRecord{record("tt1", 1, 5)}, models.TypeMovie, TierLocal, "spanish")
	c.Put(c.Key("tt2", models.TypeMovie, 0, 0), []models.MagnetRecord{record("tt2", 2, 5)}, models.TypeMovie, TierLocal, "spanish")
	require.Equal(t, 2, c.Len())

	c.Flush()
	require.Zero(t, c.Len())
}
