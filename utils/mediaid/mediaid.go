// Package mediaid classifies opaque media identifiers into their numbering
// scheme and extracts optional season/episode suffixes.
package mediaid

import (
	"strconv"
	"strings"

	"magnetar/models"
)

var schemePrefixes = map[string]models.IDScheme{
	"kitsu":   models.SchemeKitsu,
	"mal":     models.SchemeMAL,
	"anilist": models.SchemeAniList,
	"anidb":   models.SchemeAniDB,
	"tvdb":    models.SchemeTVDB,
}

// Classify parses a raw identifier string. It never fails: unrecognized input
// yields SchemeUnknown so callers can still attempt a best-effort search.
//
// Accepted forms: "tt123", "kitsu:456", either with a ":{season}:{episode}"
// suffix. A bare numeric string is treated as an IMDb id missing its "tt"
// literal, which is how several upstream catalogs hand them over.
func Classify(raw string) models.ContentIdentifier {
	raw = strings.TrimSpace(raw)
	id := models.ContentIdentifier{Raw: raw, Scheme: models.SchemeUnknown}
	if raw == "" {
		return id
	}

	parts := strings.Split(raw, ":")

	// Trailing ":season:episode" suffix, when both parse as positive ints.
	if len(parts) >= 3 {
		season, err1 := strconv.Atoi(parts[len(parts)-2])
		episode, err2 := strconv.Atoi(parts[len(parts)-1])
		if err1 == nil && err2 == nil && season > 0 && episode > 0 {
			id.Season = season
			id.Episode = episode
			parts = parts[:len(parts)-2]
		}
	}

	switch len(parts) {
	case 1:
		id.Scheme = classifyBare(parts[0])
	case 2:
		if scheme, ok := schemePrefixes[strings.ToLower(parts[0])]; ok {
			id.Scheme = scheme
		}
	default:
		id.Scheme = models.SchemeUnknown
	}
	return id
}

func classifyBare(s string) models.IDScheme {
	if strings.HasPrefix(s, "tt") {
		return models.SchemeIMDB
	}
	if isNumeric(s) {
		return models.SchemeIMDB
	}
	return models.SchemeUnknown
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
