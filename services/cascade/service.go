// Package cascade coordinates magnet resolution across the local index
// stores, the remote search tiers and the two caching layers.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"magnetar/config"
	"magnetar/models"
	"magnetar/services/store"
	"magnetar/services/torrentio"
	"magnetar/utils/mediaid"
)

// IndexStore is the read/reload contract the orchestrator needs from a local
// bucket.
type IndexStore interface {
	Name() string
	Load() error
	Reload() error
	Query(id models.ContentIdentifier, opts store.QueryOptions) ([]models.MagnetRecord, error)
}

var _ IndexStore = (*store.Store)(nil)

// SearchAdapter is the remote search contract.
type SearchAdapter interface {
	Search(ctx context.Context, id models.ContentIdentifier, contentType models.ContentType, tier torrentio.Tier) ([]models.MagnetRecord, error)
	DetectType(id models.ContentIdentifier, requested models.ContentType) models.ContentType
}

var _ SearchAdapter = (*torrentio.Adapter)(nil)

// localBuckets is the fixed fan-out order for step one of every cascade.
var localBuckets = []string{
	config.BucketAggregator,
	config.BucketPrimary,
	config.BucketAnime,
	config.BucketFallback,
}

// Service is the top-level resolution coordinator. The stores, adapter and
// both caches are injected once at construction and shared across requests;
// everything else is request-scoped.
type Service struct {
	cfg     config.CascadeSettings
	stores  map[string]IndexStore
	adapter SearchAdapter
	cache   *ResultCache
	memo    *ExhaustionMemo
}

// New wires the orchestrator. The stores map is keyed by bucket name
// (config.Bucket*); missing buckets are simply skipped during fan-out.
func New(settings config.Settings, stores map[string]IndexStore, adapter SearchAdapter) *Service {
	return &Service{
		cfg:     settings.Cascade,
		stores:  stores,
		adapter: adapter,
		cache:   NewResultCache(settings.Cache),
		memo:    NewExhaustionMemo(settings.Cache),
	}
}

// Cache exposes the result cache for the admin surface.
func (s *Service) Cache() *ResultCache { return s.cache }

// Memo exposes the exhaustion memo for the admin surface.
func (s *Service) Memo() *ExhaustionMemo { return s.memo }

// Resolve runs the full cascade for one identifier: cache, parallel local
// fan-out, then the sequential remote tiers, updating both caches on the way
// out. The only user-visible failure is models.ErrNotFound with the original
// identifier attached.
func (s *Service) Resolve(ctx context.Context, rawID string, requested models.ContentType) ([]models.MagnetRecord, error) {
	id := mediaid.Classify(rawID)
	contentType := s.adapter.DetectType(id, requested)

	key := s.cache.Key(id.BaseID(), contentType, id.Season, id.Episode)
	if cached, ok := s.cache.Get(key); ok {
		log.Printf("[cascade] cache hit for %s (%d records)", rawID, len(cached))
		return cached, nil
	}

	// Step 2-3: all local stores in parallel, merged by priority.
	byBucket := s.queryLocalStores(id)
	if merged := s.mergeLocal(byBucket, contentType); len(merged) > 0 {
		if final := s.finish(key, merged, contentType, TierLocal); len(final) > 0 {
			return final, nil
		}
	}

	// Step 4: local-language remote tier.
	records, _ := s.remoteTier(ctx, id, contentType, torrentio.TierSpanish)
	if final := s.finish(key, records, contentType, TierRemote); len(final) > 0 {
		return final, nil
	}

	// Step 5: alternate-language local store, then alternate-language remote.
	if english := s.queryStore(config.BucketEnglish, id); len(english) > 0 {
		if final := s.finish(key, english, contentType, TierLocal); len(final) > 0 {
			return final, nil
		}
	}
	records, terminalErr := s.remoteTier(ctx, id, contentType, torrentio.TierEnglish)
	if final := s.finish(key, records, contentType, TierRemote); len(final) > 0 {
		return final, nil
	}

	// Step 6: full exhaustion. Negative marker dampens repeat storms; the
	// terminal remote error rides along only because nothing else produced
	// anything at all.
	s.cache.PutNegative(key)
	notFound := fmt.Errorf("resolve %q: %w", rawID, models.ErrNotFound)
	if terminalErr != nil {
		return nil, errors.Join(notFound, terminalErr)
	}
	return nil, notFound
}

// queryLocalStores fans out to every applicable bucket concurrently with
// join-all semantics: a single store's failure never cancels its siblings.
// Empty-returning stores are marked exhausted.
func (s *Service) queryLocalStores(id models.ContentIdentifier) map[string][]models.MagnetRecord {
	var mu sync.Mutex
	results := make(map[string][]models.MagnetRecord, len(localBuckets))

	p := pool.New().WithMaxGoroutines(len(localBuckets))
	for _, bucket := range localBuckets {
		st, ok := s.stores[bucket]
		if !ok {
			continue
		}
		if s.memo.IsExhausted(id.Raw, bucket) {
			continue
		}
		bucket := bucket
		p.Go(func() {
			recs, err := st.Query(id, store.QueryOptions{Season: id.Season, Episode: id.Episode})
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					s.memo.MarkLocal(id.Raw, bucket)
				} else {
					// Absorbed: a failing store contributes an empty
					// result, the cascade moves on.
					log.Printf("[cascade] store %s query failed: %v", bucket, err)
				}
				return
			}
			mu.Lock()
			results[bucket] = recs
			mu.Unlock()
		})
	}
	p.Wait()
	return results
}

// queryStore is the sequential single-store probe used for the alternate
// language bucket.
func (s *Service) queryStore(bucket string, id models.ContentIdentifier) []models.MagnetRecord {
	st, ok := s.stores[bucket]
	if !ok {
		return nil
	}
	if s.memo.IsExhausted(id.Raw, bucket) {
		return nil
	}
	recs, err := st.Query(id, store.QueryOptions{Season: id.Season, Episode: id.Episode})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.memo.MarkLocal(id.Raw, bucket)
		} else {
			log.Printf("[cascade] store %s query failed: %v", bucket, err)
		}
		return nil
	}
	return recs
}

// mergeLocal applies the fixed priority rule. An aggregator match wins with
// exactly AggregatorTop records, supplemented by a bounded number of primary
// (and, for episodic content, anime) records; otherwise primary, anime and
// the capped fallback bucket are preferred in that order. The caps are tuned
// constants, not invariants.
func (s *Service) mergeLocal(byBucket map[string][]models.MagnetRecord, contentType models.ContentType) []models.MagnetRecord {
	for _, recs := range byBucket {
		sortBySeeders(recs)
	}
	if agg := byBucket[config.BucketAggregator]; len(agg) > 0 {
		merged := append([]models.MagnetRecord(nil), capped(agg, s.cfg.AggregatorTop)...)
		merged = append(merged, capped(byBucket[config.BucketPrimary], s.cfg.PrimarySupplement)...)
		if contentType != models.TypeMovie {
			merged = append(merged, capped(byBucket[config.BucketAnime], s.cfg.AnimeSupplement)...)
		}
		return dedupeByHash(merged)
	}
	if primary := byBucket[config.BucketPrimary]; len(primary) > 0 {
		return primary
	}
	if anime := byBucket[config.BucketAnime]; len(anime) > 0 {
		return anime
	}
	return capped(byBucket[config.BucketFallback], s.cfg.FallbackSupplement)
}

// remoteTier calls the remote adapter for one tier, honoring the exhaustion
// memo keyed by the exact probe identifier: a base-level mark never blocks a
// season/episode probe, because memo entries are per probe key. On success
// the matching exhaustion entries are cleared and the affected store
// reinitialized. The error return is non-nil only for hard adapter failures.
func (s *Service) remoteTier(ctx context.Context, id models.ContentIdentifier, contentType models.ContentType, tier torrentio.Tier) ([]models.MagnetRecord, error) {
	source := "remote:" + string(tier)
	if s.memo.IsExhausted(id.Raw, source) {
		return nil, nil
	}

	records, err := s.adapter.Search(ctx, id, contentType, tier)
	if err != nil {
		log.Printf("[cascade] remote tier %s failed for %s: %v", tier, id.Raw, err)
		return nil, err
	}
	if len(records) == 0 {
		s.memo.MarkRemote(id.Raw, source)
		return nil, nil
	}

	s.memo.Clear(id.BaseID(), source)
	bucket := torrentio.BucketFor(torrentio.RefineType(records, contentType), tier)
	if st, ok := s.stores[bucket]; ok {
		s.memo.Clear(id.BaseID(), bucket)
		if rerr := st.Reload(); rerr != nil {
			log.Printf("[cascade] reload of %s after remote hit failed: %v", bucket, rerr)
		}
	}
	return records, nil
}

// finish filters out unseeded records, trims to the sufficiency threshold and
// populates the result cache. Returns nil when nothing usable remains, which
// sends the cascade on to the next tier.
func (s *Service) finish(key string, records []models.MagnetRecord, contentType models.ContentType, tier ResultTier) []models.MagnetRecord {
	seeded := records[:0:0]
	for _, rec := range records {
		if rec.Seeders > 0 {
			seeded = append(seeded, rec)
		}
	}
	if len(seeded) == 0 {
		return nil
	}
	sortBySeeders(seeded)
	if s.cfg.SufficientResults > 0 && len(seeded) > s.cfg.SufficientResults {
		seeded = seeded[:s.cfg.SufficientResults]
	}
	language := "spanish"
	if tier == TierRemote {
		language = "auto"
	}
	s.cache.Put(key, seeded, contentType, tier, language)
	return seeded
}

func sortBySeeders(records []models.MagnetRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Seeders > records[j].Seeders
	})
}

func capped(records []models.MagnetRecord, limit int) []models.MagnetRecord {
	if limit <= 0 || len(records) == 0 {
		return nil
	}
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

func dedupeByHash(records []models.MagnetRecord) []models.MagnetRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, rec := range records {
		hash := rec.InfoHash()
		if hash != "" {
			if _, dup := seen[hash]; dup {
				continue
			}
			seen[hash] = struct{}{}
		}
		out = append(out, rec)
	}
	return out
}
