package torrentio

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"

	"magnetar/models"
)

// Quality extraction is an ordered table evaluated top to bottom: the first
// pattern matching the combined name+description text wins. The branches are
// inherently heuristic; the fixture tests in parse_test.go are the contract.
var qualityPatterns = []struct {
	re      *regexp.Regexp
	quality models.Quality
}{
	{regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`), models.Quality4K},
	{regexp.MustCompile(`(?i)\b(1080p|fhd|full ?hd)\b`), models.Quality1080p},
	{regexp.MustCompile(`(?i)\b(720p|hdtv ?rip|hd)\b`), models.Quality720p},
	{regexp.MustCompile(`(?i)\b(480p|360p)\b`), models.Quality480p},
	{regexp.MustCompile(`(?i)\b(dvd ?rip|br ?rip|bd ?rip|web ?rip|web-?dl|hdtv|hd ?rip|blu ?ray)\b`), models.QualitySD},
}

var (
	reSizeLabeled = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGTP]?B)`)
	reSizeBare    = regexp.MustCompile(`(?i)\b([\d.,]+)\s*(GB|MB|TB)\b`)
	reSeeders     = regexp.MustCompile(`👤\s*(\d+)`)
	reProvider    = regexp.MustCompile(`⚙️\s*([^\n]+)`)

	// Season/episode patterns: scene style, Spanish "temporada" style, NxN.
	reSeasonEpisode = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bS(\d{1,2})[\s.]?E(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\bT(\d{1,2})[\s.]?E(\d{1,3})\b`),
		regexp.MustCompile(`\b(\d{1,2})x(\d{1,3})\b`),
	}
	reTrailingNumber = regexp.MustCompile(`[\s._-](\d{1,3})\s*$`)
)

// knownProviders is the fallback when a descriptor carries no ⚙️ label.
var knownProviders = []string{
	"mejortorrent", "wolfmax4k", "cinecalidad", "gamatorrent", "yts", "eztv",
	"thepiratebay", "1337x", "rarbg", "torrentgalaxy", "nyaasi", "horriblesubs",
}

// defaultTrackers is always appended to synthesized magnets so freshly
// discovered hashes are connectable even when the descriptor carried none.
var defaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.openbittorrent.com:6969/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
}

func extractQuality(text string) models.Quality {
	for _, entry := range qualityPatterns {
		if entry.re.MatchString(text) {
			return entry.quality
		}
	}
	return models.QualityUnknown
}

func extractSize(text string) string {
	if m := reSizeLabeled.FindStringSubmatch(text); len(m) == 3 {
		return m[1] + " " + strings.ToUpper(m[2])
	}
	if m := reSizeBare.FindStringSubmatch(text); len(m) == 3 {
		return m[1] + " " + strings.ToUpper(m[2])
	}
	return "N/A"
}

func extractSeeders(text string) int {
	m := reSeeders.FindStringSubmatch(text)
	if len(m) != 2 {
		return 0
	}
	seeders, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return seeders
}

// approximatePeers derives a peer count from seeders; the upstream source
// does not expose peers directly.
func approximatePeers(seeders int) int {
	return int(float64(seeders) * 0.3)
}

func extractProvider(text string) string {
	if m := reProvider.FindStringSubmatch(text); len(m) == 2 {
		provider := strings.TrimSpace(m[1])
		if provider != "" {
			return provider
		}
	}
	lowered := strings.ToLower(text)
	for _, name := range knownProviders {
		if strings.Contains(lowered, name) {
			return name
		}
	}
	return "unknown"
}

// extractEpisode finds season/episode markers in free text. For anime
// descriptors a trailing bare number is accepted as the episode, which is how
// most fansub groups label releases.
func extractEpisode(text string, anime bool) (season, episode int) {
	for _, re := range reSeasonEpisode {
		if m := re.FindStringSubmatch(text); len(m) == 3 {
			s, err1 := strconv.Atoi(m[1])
			e, err2 := strconv.Atoi(m[2])
			if err1 == nil && err2 == nil && s > 0 && e > 0 {
				return s, e
			}
		}
	}
	if anime {
		firstLine := text
		if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
			firstLine = firstLine[:idx]
		}
		if m := reTrailingNumber.FindStringSubmatch(strings.TrimSpace(firstLine)); len(m) == 2 {
			if e, err := strconv.Atoi(m[1]); err == nil && e > 0 {
				return 1, e
			}
		}
	}
	return 0, 0
}

// displayName prefers the first non-empty line of the free-text field and
// falls back to a synthesized name from the hash.
func displayName(title, infoHash string) string {
	for _, line := range strings.Split(title, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "resource " + infoHash
}

// buildMagnet synthesizes the canonical resource URI: lowercase 40-hex hash,
// cleaned url-encoded display name, descriptor trackers, then the default
// tracker set.
func buildMagnet(infoHash, name string, trackers []string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(strings.ToLower(infoHash))
	b.WriteString("&dn=")
	b.WriteString(url.QueryEscape(cleanName(name)))
	for _, tracker := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	for _, tracker := range defaultTrackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

// cleanName transliterates accented titles to ASCII and strips characters
// that confuse magnet-handling clients.
func cleanName(name string) string {
	ascii := unidecode.Unidecode(name)
	var b strings.Builder
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '-', r == '_', r == '[', r == ']', r == '(', r == ')':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

var reInfoHash = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

func validInfoHash(hash string) bool {
	return reInfoHash.MatchString(hash)
}

// descriptorTrackers pulls tracker hints out of the descriptor's sources
// list ("tracker:udp://..." entries; "dht:" entries carry no URL).
func descriptorTrackers(sources []string) []string {
	var trackers []string
	for _, src := range sources {
		if rest, ok := strings.CutPrefix(src, "tracker:"); ok {
			if trimmed := strings.TrimSpace(rest); trimmed != "" {
				trackers = append(trackers, trimmed)
			}
		}
	}
	return trackers
}
