// Package torrentio adapts the remote torrent search endpoint: it builds
// tier-specific query URLs, issues them through the anonymizing transport and
// normalizes the free-text stream descriptors into magnet records.
package torrentio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"magnetar/config"
	"magnetar/models"
)

// Tier selects the language/region level of the remote search.
type Tier string

const (
	TierSpanish Tier = "spanish"
	TierEnglish Tier = "english"
)

// transport is the resilient HTTP client the adapter issues queries through.
type transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Sink receives successfully parsed records for persistence.
type Sink interface {
	Name() string
	Append(records []models.MagnetRecord) error
}

// Adapter queries the remote search endpoint and normalizes its responses.
type Adapter struct {
	baseURL   string
	transport transport
	search    map[string]config.SearchSettings
	sinks     map[string]Sink // bucket name -> store
}

// streamsResponse mirrors the remote endpoint's JSON body.
type streamsResponse struct {
	Streams []streamDescriptor `json:"streams"`
}

type streamDescriptor struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	InfoHash      string         `json:"infoHash"`
	FileIdx       *int           `json:"fileIdx"`
	Sources       []string       `json:"sources,omitempty"`
	BehaviorHints map[string]any `json:"behaviorHints,omitempty"`
}

const defaultBaseURL = "https://torrentio.strem.fun"

// NewAdapter constructs the adapter. An empty baseURL falls back to the
// public endpoint; sinks maps bucket names to the stores that persist
// discoveries for that bucket.
func NewAdapter(baseURL string, t transport, search map[string]config.SearchSettings, sinks map[string]Sink) *Adapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		transport: t,
		search:    search,
		sinks:     sinks,
	}
}

// Search runs a remote query for one identifier at one tier and returns the
// normalized, hash-deduplicated records. Parsed records are persisted to the
// matching local bucket fire-and-forget: persistence failure is logged and
// never surfaces as a search failure.
func (a *Adapter) Search(ctx context.Context, id models.ContentIdentifier, contentType models.ContentType, tier Tier) ([]models.MagnetRecord, error) {
	contentType = a.DetectType(id, contentType)
	endpoint := a.buildURL(id, contentType, tier)
	log.Printf("[torrentio] querying tier=%s type=%s id=%s", tier, contentType, id.Raw)

	body, err := a.transport.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch streams for %s: %w", id.Raw, err)
	}

	var payload streamsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode streams for %s: %w", id.Raw, err)
	}

	records := a.normalize(payload.Streams, id, contentType, tier)
	if len(records) > 0 {
		// Long episode runs reclassify the batch so it lands in the right
		// bucket.
		contentType = RefineType(records, contentType)
		go a.persist(records, contentType, tier)
	}
	return records, nil
}

// buildURL encodes the tier's source list, availability sort, quality
// exclusion, result cap and language tag into the query path.
func (a *Adapter) buildURL(id models.ContentIdentifier, contentType models.ContentType, tier Tier) string {
	cfg := a.settingsFor(contentType, tier)
	options := fmt.Sprintf("providers=%s|sort=seeders|qualityfilter=%s|limit=%d|lang=%s",
		strings.Join(cfg.Providers, ","),
		strings.Join(cfg.QualityFilter, ","),
		cfg.Limit,
		cfg.Language,
	)
	streamID := id.BaseID()
	if id.HasEpisode() {
		streamID = id.EpisodeID(id.Season, id.Episode)
	}
	return fmt.Sprintf("%s/%s/stream/%s/%s.json",
		a.baseURL, options, pathType(contentType), url.PathEscape(streamID))
}

func (a *Adapter) settingsFor(contentType models.ContentType, tier Tier) config.SearchSettings {
	if tier == TierEnglish {
		if cfg, ok := a.search[string(TierEnglish)]; ok {
			return cfg
		}
	}
	if cfg, ok := a.search[string(contentType)]; ok {
		return cfg
	}
	return a.search[string(models.TypeMovie)]
}

// pathType maps content classes onto the endpoint's two stream paths; the
// anime class rides the series path.
func pathType(contentType models.ContentType) string {
	if contentType == models.TypeMovie {
		return "movie"
	}
	return "series"
}

// normalize runs the per-descriptor pipeline and deduplicates by hash.
// Malformed descriptors are skipped and logged, never fatal to the batch.
func (a *Adapter) normalize(streams []streamDescriptor, id models.ContentIdentifier, contentType models.ContentType, tier Tier) []models.MagnetRecord {
	anime := contentType == models.TypeAnime
	seen := make(map[string]struct{}, len(streams))
	records := make([]models.MagnetRecord, 0, len(streams))

	for _, stream := range streams {
		infoHash := strings.ToLower(strings.TrimSpace(stream.InfoHash))
		if !validInfoHash(infoHash) {
			log.Printf("[torrentio] skipping descriptor without usable hash for %s", id.Raw)
			continue
		}
		if _, dup := seen[infoHash]; dup {
			continue
		}
		seen[infoHash] = struct{}{}

		combined := stream.Name + "\n" + stream.Title
		name := displayName(stream.Title, infoHash)

		season, episode := id.Season, id.Episode
		if season == 0 || episode == 0 {
			season, episode = extractEpisode(combined, anime)
		}

		seeders := extractSeeders(combined)
		fileIdx := 0
		if stream.FileIdx != nil {
			fileIdx = *stream.FileIdx
		}

		rec := models.MagnetRecord{
			ContentID: id.BaseID(),
			Name:      name,
			Magnet:    buildMagnet(infoHash, name, descriptorTrackers(stream.Sources)),
			Quality:   extractQuality(combined),
			Size:      extractSize(combined),
			Source:    string(tier),
			FileIdx:   fileIdx,
			Provider:  extractProvider(combined),
			Seeders:   seeders,
			Peers:     approximatePeers(seeders),
			Season:    season,
			Episode:   episode,
			IDType:    string(id.Scheme),
		}
		if id.Scheme == models.SchemeIMDB {
			rec.IMDBID = id.BaseID()
		}
		records = append(records, rec)
	}
	return records
}

// DetectType infers the content class when the caller passes "auto": explicit
// anime schemes win, then the presence of a season/episode suffix.
func (a *Adapter) DetectType(id models.ContentIdentifier, requested models.ContentType) models.ContentType {
	if requested != models.TypeAuto && requested != "" {
		return requested
	}
	if id.Scheme.AnimeScheme() {
		return models.TypeAnime
	}
	if id.HasEpisode() {
		return models.TypeSeries
	}
	return models.TypeMovie
}

// RefineType applies the episode-count heuristics over a parsed batch: long
// episode runs, or episode numbers past a typical single-season run, bias the
// batch toward the anime classification.
func RefineType(records []models.MagnetRecord, current models.ContentType) models.ContentType {
	if current != models.TypeSeries {
		return current
	}
	episodes := make(map[int]struct{})
	for _, rec := range records {
		if rec.Episode <= 0 {
			continue
		}
		episodes[rec.Episode] = struct{}{}
		if rec.Episode > 30 {
			return models.TypeAnime
		}
	}
	if len(episodes) > 13 {
		return models.TypeAnime
	}
	return current
}

// BucketFor names the local bucket a discovery at this type/tier lands in.
func BucketFor(contentType models.ContentType, tier Tier) string {
	switch {
	case contentType == models.TypeAnime:
		return config.BucketAnime
	case tier == TierEnglish:
		return config.BucketEnglish
	default:
		return config.BucketAggregator
	}
}

// persist routes a batch into the matching local bucket.
func (a *Adapter) persist(records []models.MagnetRecord, contentType models.ContentType, tier Tier) {
	sink, ok := a.sinks[BucketFor(contentType, tier)]
	if !ok {
		return
	}
	if err := sink.Append(records); err != nil {
		log.Printf("[torrentio] persist to %s failed: %v", sink.Name(), err)
	}
}
