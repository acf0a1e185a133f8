// Package store implements the CSV-backed local magnet index: a read-mostly,
// append-only collection of normalized records per bucket, served from an
// atomically swappable in-memory snapshot.
package store

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"magnetar/models"
)

// QueryOptions narrows a query to a specific season/episode.
type QueryOptions struct {
	Season  int
	Episode int
}

// Store is a handle over one bucket's backing file. Readers always observe a
// complete snapshot; Reload and Append swap snapshots atomically.
type Store struct {
	name string
	path string
	fs   afero.Fs

	writeMu sync.Mutex // serializes Load/Reload/Append
	snap    atomic.Pointer[index]
}

type index struct {
	records []models.MagnetRecord
	byKey   map[string][]int
}

// New creates an unloaded store handle for a bucket.
func New(name, path string, fs afero.Fs) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{name: name, path: path, fs: fs}
}

func (s *Store) Name() string { return s.name }

// Loaded reports whether a snapshot is being served.
func (s *Store) Loaded() bool { return s.snap.Load() != nil }

// Count returns the number of records in the current snapshot.
func (s *Store) Count() int {
	if idx := s.snap.Load(); idx != nil {
		return len(idx.records)
	}
	return 0
}

// Load reads the backing file on first use. It is idempotent: once a snapshot
// is live, Load is a no-op. A missing file is created with the header row.
func (s *Store) Load() error {
	if s.snap.Load() != nil {
		return nil
	}
	return s.Reload()
}

// Reload re-reads the backing file and atomically swaps the snapshot. On read
// failure the previous snapshot stays live and the error is surfaced to the
// caller only; in-flight readers are never affected.
func (s *Store) Reload() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return fmt.Errorf("reload %s: %w", s.name, err)
	}
	s.snap.Store(buildIndex(records))
	log.Printf("[store] %s loaded %d records from %s", s.name, len(records), s.path)
	return nil
}

// Query returns the records matching an identifier, consulting both the
// identifier as given and its native-scheme equivalent. Fails with
// models.ErrNotFound when nothing matches.
func (s *Store) Query(id models.ContentIdentifier, opts QueryOptions) ([]models.MagnetRecord, error) {
	idx := s.snap.Load()
	if idx == nil {
		if err := s.Load(); err != nil {
			return nil, err
		}
		idx = s.snap.Load()
	}

	seen := make(map[int]struct{})
	var matched []models.MagnetRecord
	for _, key := range queryKeys(id, opts) {
		for _, pos := range idx.byKey[key] {
			if _, dup := seen[pos]; dup {
				continue
			}
			rec := idx.records[pos]
			if !rec.EpisodeMatches(opts.Season, opts.Episode) {
				continue
			}
			seen[pos] = struct{}{}
			matched = append(matched, rec)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%s: %q: %w", s.name, id.Raw, models.ErrNotFound)
	}
	return matched, nil
}

// Append persists new records to the backing file and folds them into the
// snapshot without a full reload. Records already present (same info hash and
// content id) are skipped.
func (s *Store) Append(records []models.MagnetRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snap.Load()
	if current == nil {
		loaded, err := s.readAll()
		if err != nil {
			return fmt.Errorf("append %s: %w", s.name, err)
		}
		current = buildIndex(loaded)
	}

	existing := make(map[string]struct{}, len(current.records))
	for _, rec := range current.records {
		existing[rec.ContentID+"|"+rec.InfoHash()] = struct{}{}
	}
	fresh := make([]models.MagnetRecord, 0, len(records))
	for _, rec := range records {
		key := rec.ContentID + "|" + rec.InfoHash()
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := s.appendRows(fresh); err != nil {
		return fmt.Errorf("append %s: %w", s.name, err)
	}

	merged := make([]models.MagnetRecord, 0, len(current.records)+len(fresh))
	merged = append(merged, current.records...)
	merged = append(merged, fresh...)
	s.snap.Store(buildIndex(merged))
	log.Printf("[store] %s appended %d records", s.name, len(fresh))
	return nil
}

// buildIndex keys every record under its content id, the base of a compound
// content id, and its native-scheme (imdb) id when present, so a record
// discovered under an alternate identifier stays reachable either way.
func buildIndex(records []models.MagnetRecord) *index {
	idx := &index{records: records, byKey: make(map[string][]int)}
	for pos, rec := range records {
		keys := map[string]struct{}{}
		if rec.ContentID != "" {
			keys[rec.ContentID] = struct{}{}
		}
		if _, _, ok := models.SplitCompoundID(rec.ContentID); ok {
			if base := compoundBase(rec.ContentID); base != "" {
				keys[base] = struct{}{}
			}
		}
		if rec.IMDBID != "" {
			keys[rec.IMDBID] = struct{}{}
		}
		for key := range keys {
			idx.byKey[key] = append(idx.byKey[key], pos)
		}
	}
	return idx
}

func queryKeys(id models.ContentIdentifier, opts QueryOptions) []string {
	keys := []string{id.BaseID()}
	if id.Raw != id.BaseID() {
		keys = append(keys, id.Raw)
	}
	if opts.Season > 0 && opts.Episode > 0 {
		keys = append(keys, id.EpisodeID(opts.Season, opts.Episode))
	}
	return keys
}

func compoundBase(id string) string {
	season, episode, ok := models.SplitCompoundID(id)
	if !ok {
		return ""
	}
	suffix := fmt.Sprintf(":%d:%d", season, episode)
	if len(id) <= len(suffix) {
		return ""
	}
	return id[:len(id)-len(suffix)]
}
