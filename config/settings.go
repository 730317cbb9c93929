package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server      ServerSettings    `json:"server"`
	SelfBaseURL string            `json:"selfBaseUrl"`
	Languages   []string          `json:"languages"`
	Timeouts    TimeoutSettings   `json:"timeouts"`
	Scrapers    []ScraperConfig   `json:"scrapers"`
	Debrid      DebridSettings    `json:"debrid"`
	Proxy       ProxySettings     `json:"proxy"`
	Usenet      UsenetSettings    `json:"usenet"`
	Easynews    EasynewsSettings  `json:"easynews"`
	HomeMedia   HomeMediaSettings `json:"homeMedia"`
	Filtering   FilterSettings    `json:"filtering"`
	Resolver    ResolverSettings  `json:"resolver"`
	Cache       CacheSettings     `json:"cache"`
	Metadata    MetadataSettings  `json:"metadata"`
	Log         LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TimeoutSettings bound each scraper individually and the whole search.
// Scrapers that miss their slot are cut; the search returns whatever the
// rest produced by the global deadline.
type TimeoutSettings struct {
	ScraperSeconds int `json:"scraperSeconds"`
	GlobalSeconds  int `json:"globalSeconds"`
}

type ScraperConfig struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`    // "torrentio", "comet", "torznab", "zilean", ...
	URL      string            `json:"url"`     // base URL for self-hosted or torznab endpoints
	APIKey   string            `json:"apiKey"`  // torznab/newznab key
	Options  string            `json:"options"` // torrentio-style URL path options
	Limit    int               `json:"limit"`   // per-scraper result cap, 0 = unlimited
	MaxPages int               `json:"maxPages"`
	Enabled  bool              `json:"enabled"`
	Config   map[string]string `json:"config,omitempty"` // scraper-specific extras
}

type DebridSettings struct {
	Service           string `json:"service"` // "realdebrid", "alldebrid", "torbox"
	Token             string `json:"token"`
	CheckAvailability bool   `json:"checkAvailability"`
}

// ProxySettings routes outbound traffic per purpose. Services maps a purpose
// ("scrapers", "httpstreams", "debrid:<service>", or "*") to on/off; a URL
// containing "{url}" selects the legacy wrapping proxy instead of an agent.
type ProxySettings struct {
	ProxyURL string          `json:"proxyUrl"`
	Services map[string]bool `json:"services,omitempty"`
}

type UsenetSettings struct {
	Enabled        bool    `json:"enabled"`
	IndexerURL     string  `json:"indexerUrl"`
	IndexerAPIKey  string  `json:"indexerApiKey"`
	SABnzbdURL     string  `json:"sabnzbdUrl"`
	SABnzbdAPIKey  string  `json:"sabnzbdApiKey"`
	CompleteDir    string  `json:"completeDir"`
	ReadyPercent   float64 `json:"readyPercent"`
	MaxWaitSeconds int     `json:"maxWaitSeconds"`
}

type EasynewsSettings struct {
	Enabled  bool   `json:"enabled"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type HomeMediaSettings struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	APIKey  string `json:"apiKey"`
}

type FilterSettings struct {
	MinSizeGiB float64 `json:"minSizeGib"`
	MaxSizeGiB float64 `json:"maxSizeGib"`
}

type ResolverSettings struct {
	DisableHTTPStreamLazyLoad bool     `json:"disableHttpStreamLazyLoad"`
	DisableURLValidation      bool     `json:"disableUrlValidation"`
	DisableSeekValidation     bool     `json:"disableSeekValidation"`
	SkipValidationHosts       []string `json:"skipValidationHosts,omitempty"`
}

type CacheSettings struct {
	Backend          string `json:"backend"` // "memory" or "sqlite"
	Directory        string `json:"directory"`
	MovieTTLMinutes  int    `json:"movieTtlMinutes"`
	SeriesTTLMinutes int    `json:"seriesTtlMinutes"`
}

type MetadataSettings struct {
	CinemetaURL string `json:"cinemetaUrl"`
}

type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		Server:      ServerSettings{Host: "0.0.0.0", Port: 7945},
		SelfBaseURL: "http://127.0.0.1:7945",
		Languages:   []string{},
		Timeouts:    TimeoutSettings{ScraperSeconds: 15, GlobalSeconds: 30},
		Scrapers: []ScraperConfig{
			{Name: "Torrentio", Type: "torrentio", Enabled: true, Options: "sort=qualitysize|qualityfilter=scr,cam"},
		},
		Usenet: UsenetSettings{
			CompleteDir:    "/downloads/complete",
			ReadyPercent:   5,
			MaxWaitSeconds: 300,
		},
		Filtering: FilterSettings{},
		Cache: CacheSettings{
			Backend:          "memory",
			Directory:        "cache",
			MovieTTLMinutes:  360,
			SeriesTTLMinutes: 60,
		},
		Metadata: MetadataSettings{CinemetaURL: "https://v3-cinemeta.strem.io"},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// NormalizeLanguages canonicalizes user-supplied language codes to their
// two-letter base form ("eng" -> "en", "pt-BR" -> "pt"). Unparseable entries
// are dropped, duplicates collapsed, order preserved.
func NormalizeLanguages(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		normalized := base.String()
		if !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	return out
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

// Load reads settings.json from disk or creates defaults if missing.
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
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for newly introduced settings when config predates them
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7945
	}
	if strings.TrimSpace(s.SelfBaseURL) == "" {
		s.SelfBaseURL = "http://127.0.0.1:7945"
	}
	s.SelfBaseURL = strings.TrimRight(s.SelfBaseURL, "/")
	s.Languages = NormalizeLanguages(s.Languages)

	if s.Timeouts.ScraperSeconds <= 0 {
		s.Timeouts.ScraperSeconds = 15
	}
	if s.Timeouts.GlobalSeconds <= 0 {
		s.Timeouts.GlobalSeconds = 30
	}
	if s.Timeouts.GlobalSeconds < s.Timeouts.ScraperSeconds {
		s.Timeouts.GlobalSeconds = s.Timeouts.ScraperSeconds
	}

	if len(s.Scrapers) == 0 {
		s.Scrapers = []ScraperConfig{
			{Name: "Torrentio", Type: "torrentio", Enabled: true, Options: "sort=qualitysize|qualityfilter=scr,cam"},
		}
	}
	for i := range s.Scrapers {
		if strings.TrimSpace(s.Scrapers[i].Name) == "" {
			s.Scrapers[i].Name = s.Scrapers[i].Type
		}
	}

	if strings.TrimSpace(s.Usenet.CompleteDir) == "" {
		s.Usenet.CompleteDir = "/downloads/complete"
	}
	if s.Usenet.ReadyPercent <= 0 {
		s.Usenet.ReadyPercent = 5
	}
	if s.Usenet.MaxWaitSeconds <= 0 {
		s.Usenet.MaxWaitSeconds = 300
	}

	if strings.TrimSpace(s.Cache.Backend) == "" {
		s.Cache.Backend = "memory"
	}
	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = "cache"
	}
	if s.Cache.MovieTTLMinutes <= 0 {
		s.Cache.MovieTTLMinutes = 360
	}
	if s.Cache.SeriesTTLMinutes <= 0 {
		s.Cache.SeriesTTLMinutes = 60
	}

	if strings.TrimSpace(s.Metadata.CinemetaURL) == "" {
		s.Metadata.CinemetaURL = "https://v3-cinemeta.strem.io"
	}

	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
