package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"magnetar/models"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server  ServerSettings            `json:"server"`
	Tor     TorSettings               `json:"tor"`
	Search  map[string]SearchSettings `json:"search"` // keyed by content type
	Stores  StoreSettings             `json:"stores"`
	Cascade CascadeSettings           `json:"cascade"`
	Cache   CacheSettings             `json:"cache"`
	Log     LogConfig                 `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TorSettings configures the anonymizing transport.
type TorSettings struct {
	Host                string `json:"host"`
	SocksPort           int    `json:"socksPort"`
	ControlPort         int    `json:"controlPort"`
	ControlPassword     string `json:"controlPassword"`
	RequestTimeoutSec   int    `json:"requestTimeoutSec"`
	ProbeTimeoutSec     int    `json:"probeTimeoutSec"`
	MaxRetries          int    `json:"maxRetries"`
	RetryDelayMs        int    `json:"retryDelayMs"`
	AllowDirectFallback bool   `json:"allowDirectFallback"` // use a non-anonymized client when the proxy is down
}

// SearchSettings are the per-content-type remote query defaults.
type SearchSettings struct {
	Providers     []string `json:"providers"`
	QualityFilter []string `json:"qualityFilter"`
	Limit         int      `json:"limit"`
	Language      string   `json:"language"`
}

// StoreSettings locates the CSV-backed local index stores.
type StoreSettings struct {
	Dir   string            `json:"dir"`
	Files map[string]string `json:"files"` // bucket name -> filename under Dir
}

// Path returns the full path of a bucket's backing file.
func (s StoreSettings) Path(bucket string) string {
	name := s.Files[bucket]
	if name == "" {
		name = bucket + ".csv"
	}
	return filepath.Join(s.Dir, name)
}

// CascadeSettings holds the merge-priority constants. The supplement caps are
// empirically tuned, not principled; keep them configurable.
type CascadeSettings struct {
	AggregatorTop      int `json:"aggregatorTop"`
	PrimarySupplement  int `json:"primarySupplement"`
	AnimeSupplement    int `json:"animeSupplement"`
	FallbackSupplement int `json:"fallbackSupplement"`
	SufficientResults  int `json:"sufficientResults"`
}

// CacheSettings tunes the result cache and exhaustion memo.
type CacheSettings struct {
	MovieTTLMin      int `json:"movieTtlMin"`
	SeriesTTLMin     int `json:"seriesTtlMin"`
	AnimeTTLMin      int `json:"animeTtlMin"`
	NegativeTTLSec   int `json:"negativeTtlSec"`
	RemoteExhaustSec int `json:"remoteExhaustSec"`
	LocalExhaustSec  int `json:"localExhaustSec"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// StoreBuckets enumerates the local index buckets in their merge-priority
// roles. The names double as the Source tag on records each store produces.
const (
	BucketAggregator = "torrentio" // persisted remote discoveries, aggregator priority
	BucketPrimary    = "spanish"
	BucketAnime      = "anime"
	BucketFallback   = "combined"
	BucketEnglish    = "english"
)

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7000},
		Tor: TorSettings{
			Host:                "127.0.0.1",
			SocksPort:           9050,
			ControlPort:         9051,
			RequestTimeoutSec:   15,
			ProbeTimeoutSec:     3,
			MaxRetries:          3,
			RetryDelayMs:        750,
			AllowDirectFallback: true,
		},
		Search: map[string]SearchSettings{
			string(models.TypeMovie): {
				Providers:     []string{"mejortorrent", "wolfmax4k", "cinecalidad"},
				QualityFilter: []string{"scr", "cam", "unknown"},
				Limit:         15,
				Language:      "spanish",
			},
			string(models.TypeSeries): {
				Providers:     []string{"mejortorrent", "wolfmax4k", "eztv"},
				QualityFilter: []string{"scr", "cam", "unknown"},
				Limit:         20,
				Language:      "spanish",
			},
			string(models.TypeAnime): {
				Providers:     []string{"nyaasi", "horriblesubs"},
				QualityFilter: []string{"scr", "cam"},
				Limit:         20,
				Language:      "spanish",
			},
			"english": {
				Providers:     []string{"yts", "eztv", "thepiratebay", "1337x", "rarbg", "torrentgalaxy"},
				QualityFilter: []string{"scr", "cam", "unknown"},
				Limit:         15,
				Language:      "english",
			},
		},
		Stores: StoreSettings{
			Dir: "data",
			Files: map[string]string{
				BucketAggregator: "torrentio.csv",
				BucketPrimary:    "magnets_es.csv",
				BucketAnime:      "anime.csv",
				BucketFallback:   "magnets.csv",
				BucketEnglish:    "magnets_en.csv",
			},
		},
		Cascade: CascadeSettings{
			AggregatorTop:      1,
			PrimarySupplement:  4,
			AnimeSupplement:    2,
			FallbackSupplement: 3,
			SufficientResults:  10,
		},
		Cache: CacheSettings{
			MovieTTLMin:      240,
			SeriesTTLMin:     30,
			AnimeTTLMin:      60,
			NegativeTTLSec:   60,
			RemoteExhaustSec: 120,
			LocalExhaustSec:  300,
		},
		Log: LogConfig{
			File:       "data/logs/magnetar.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	backfill(&s)
	return s, nil
}

// Save writes settings to disk, creating the parent directory when needed.
func (m *Manager) Save(s Settings) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// backfill restores defaults for settings missing from configs that predate
// them.
func backfill(s *Settings) {
	defaults := DefaultSettings()
	if strings.TrimSpace(s.Tor.Host) == "" {
		s.Tor.Host = defaults.Tor.Host
	}
	if s.Tor.SocksPort == 0 {
		s.Tor.SocksPort = defaults.Tor.SocksPort
	}
	if s.Tor.ControlPort == 0 {
		s.Tor.ControlPort = defaults.Tor.ControlPort
	}
	if s.Tor.RequestTimeoutSec == 0 {
		s.Tor.RequestTimeoutSec = defaults.Tor.RequestTimeoutSec
	}
	if s.Tor.ProbeTimeoutSec == 0 {
		s.Tor.ProbeTimeoutSec = defaults.Tor.ProbeTimeoutSec
	}
	if s.Tor.MaxRetries == 0 {
		s.Tor.MaxRetries = defaults.Tor.MaxRetries
	}
	if s.Tor.RetryDelayMs == 0 {
		s.Tor.RetryDelayMs = defaults.Tor.RetryDelayMs
	}
	if len(s.Search) == 0 {
		s.Search = defaults.Search
	}
	if strings.TrimSpace(s.Stores.Dir) == "" {
		s.Stores.Dir = defaults.Stores.Dir
	}
	if len(s.Stores.Files) == 0 {
		s.Stores.Files = defaults.Stores.Files
	}
	if s.Cascade == (CascadeSettings{}) {
		s.Cascade = defaults.Cascade
	}
	if s.Cache == (CacheSettings{}) {
		s.Cache = defaults.Cache
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log = defaults.Log
	}
}

// SearchFor returns the query defaults for a content type, falling back to
// movie defaults when the type has no entry.
func (s Settings) SearchFor(contentType models.ContentType) SearchSettings {
	if cfg, ok := s.Search[string(contentType)]; ok {
		return cfg
	}
	return s.Search[string(models.TypeMovie)]
}
