package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is the terminal "no record anywhere" result of a resolution.
// Internal fault detail is logged at the point of failure, never attached here.
var ErrNotFound = errors.New("no magnet records found")

// IDScheme tags the numbering system an identifier belongs to.
type IDScheme string

const (
	SchemeIMDB    IDScheme = "imdb"
	SchemeKitsu   IDScheme = "kitsu"
	SchemeMAL     IDScheme = "mal"
	SchemeAniList IDScheme = "anilist"
	SchemeAniDB   IDScheme = "anidb"
	SchemeTVDB    IDScheme = "tvdb"
	SchemeUnknown IDScheme = "unknown"
)

// AnimeScheme reports whether the scheme belongs to one of the anime catalogs.
func (s IDScheme) AnimeScheme() bool {
	switch s {
	case SchemeKitsu, SchemeMAL, SchemeAniList, SchemeAniDB:
		return true
	}
	return false
}

// ContentType is the media class a resolution targets.
type ContentType string

const (
	TypeMovie  ContentType = "movie"
	TypeSeries ContentType = "series"
	TypeAnime  ContentType = "anime"
	TypeAuto   ContentType = "auto"
)

// Quality is the closed vocabulary free-text qualities normalize into.
type Quality string

const (
	Quality4K      Quality = "4K"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	Quality480p    Quality = "480p"
	QualitySD      Quality = "SD"
	QualityUnknown Quality = "unknown"
)

// ContentIdentifier is an immutable classified identifier.
// Season and Episode are both zero or both positive.
type ContentIdentifier struct {
	Raw     string
	Scheme  IDScheme
	Season  int
	Episode int
}

// HasEpisode reports whether the identifier carries a season/episode suffix.
func (c ContentIdentifier) HasEpisode() bool {
	return c.Season > 0 && c.Episode > 0
}

// BaseID returns the identifier without its season/episode suffix.
func (c ContentIdentifier) BaseID() string {
	if !c.HasEpisode() {
		return c.Raw
	}
	suffix := fmt.Sprintf(":%d:%d", c.Season, c.Episode)
	return strings.TrimSuffix(c.Raw, suffix)
}

// EpisodeID returns the identifier with the season/episode suffix applied,
// whether or not the raw form carried one.
func (c ContentIdentifier) EpisodeID(season, episode int) string {
	if season <= 0 || episode <= 0 {
		return c.BaseID()
	}
	return fmt.Sprintf("%s:%d:%d", c.BaseID(), season, episode)
}

// MagnetRecord is a normalized, immutable descriptor of a discoverable
// peer-to-peer resource. Records are created once by descriptor parsing or by
// store row parsing and never mutated afterwards.
type MagnetRecord struct {
	ContentID string  `json:"content_id"`
	Name      string  `json:"name"`
	Magnet    string  `json:"magnet"`
	Quality   Quality `json:"quality"`
	Size      string  `json:"size"`
	Source    string  `json:"source"`
	FileIdx   int     `json:"fileIdx"`
	Filename  string  `json:"filename,omitempty"`
	Provider  string  `json:"provider"`
	Seeders   int     `json:"seeders"`
	Peers     int     `json:"peers"`
	Season    int     `json:"season,omitempty"`
	Episode   int     `json:"episode,omitempty"`
	IMDBID    string  `json:"imdb_id,omitempty"`
	IDType    string  `json:"id_type"`
}

// InfoHash extracts the 40-hex resource hash embedded in the magnet URI.
// Returns "" when the URI is malformed.
func (m MagnetRecord) InfoHash() string {
	const marker = "xt=urn:btih:"
	idx := strings.Index(m.Magnet, marker)
	if idx < 0 {
		return ""
	}
	rest := m.Magnet[idx+len(marker):]
	if amp := strings.IndexByte(rest, '&'); amp >= 0 {
		rest = rest[:amp]
	}
	if len(rest) != 40 {
		return ""
	}
	return strings.ToLower(rest)
}

// EpisodeMatches reports whether the record applies to the given
// season/episode. Records without explicit fields fall back to parsing a
// compound content id ("id:season:episode"); records carrying no episode
// information at all match only when the query itself carries none.
func (m MagnetRecord) EpisodeMatches(season, episode int) bool {
	if season <= 0 || episode <= 0 {
		return true
	}
	if m.Season > 0 && m.Episode > 0 {
		return m.Season == season && m.Episode == episode
	}
	if s, e, ok := SplitCompoundID(m.ContentID); ok {
		return s == season && e == episode
	}
	return false
}

// SplitCompoundID parses a trailing ":season:episode" suffix from a content
// id. ok is false when the id carries no parseable suffix.
func SplitCompoundID(id string) (season, episode int, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) < 3 {
		return 0, 0, false
	}
	s, err1 := strconv.Atoi(parts[len(parts)-2])
	e, err2 := strconv.Atoi(parts[len(parts)-1])
	if err1 != nil || err2 != nil || s <= 0 || e <= 0 {
		return 0, 0, false
	}
	return s, e, true
}
