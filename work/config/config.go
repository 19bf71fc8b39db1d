package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Config holds all runtime configuration for the harvester. It covers the
// upstream listing site, the headless browser, per-stage budgets, the metadata
// lookup, and the playlist export.
type Config struct {
	SiteBaseURL   string // Base URL of the listing site (e.g. "https://example-flix.to")
	TrendingPath  string // Path of the facet-less trending listing
	ListingPath   string // Path of the genre listing endpoint
	OutputPath    string // Playlist file written on each run
	Debug         bool   // Enable debug logging
	ObfuscateUrls bool   // Obfuscate stream URLs in logs

	ItemLimit    int // Maximum items collected per category
	ChunkSize    int // Genre categories processed concurrently
	RecycleEvery int // Items processed before a session is recycled
	MaxSessions  int // Browser session ceiling (>= ChunkSize + 1)

	ScrollCycles int           // Scroll-and-settle cycles during discovery
	ScrollDelay  time.Duration // Settle delay after each scroll
	SettleDelay  time.Duration // Settle delay after a provider control click
	NodeBudget   time.Duration // Per-node extraction budget during discovery

	DiscoveryBudget time.Duration // Whole-category discovery budget
	ExtractBudget   time.Duration // Embed extraction budget per item
	ResolveBudget   time.Duration // Wait budget for the manifest signal
	EnrichBudget    time.Duration // Metadata lookup budget per item

	Providers []string      // Preferred embed providers, in match order
	Facets    []FacetConfig // Genre facets harvested after trending

	Browser  BrowserConfig  // Headless session options
	Embed    RetryPolicy    // Retry policy at the embed extraction boundary
	Resolve  RetryPolicy    // Retry policy at the stream resolution boundary
	Metadata MetadataConfig // External metadata lookup

	VerifyStreams bool          // Probe resolved URLs as HLS playlists after resolution
	StorePath     string        // sqlite ledger path; empty disables the ledger
	ResolutionTTL time.Duration // Reuse window for previously resolved streams

	DeadEmbedThreshold int           // Failures before an embed host is considered dead
	DeadEmbedCooldown  time.Duration // How long a dead embed host is skipped

	RefreshInterval time.Duration // Harvest cadence in serve mode
}

// FacetConfig names one genre facet and how to select it: a query parameter
// value tried first, and a menu locator used when the site ignores the query.
type FacetConfig struct {
	Name     string `json:"name"`
	Query    string `json:"query"`
	MenuItem string `json:"menuItem"`
}

// BrowserConfig enumerates the recognized headless session options. Blocked
// subresource classes keep session memory bounded; anything not listed here is
// not a supported switch.
type BrowserConfig struct {
	Headless          bool          // Run without a window
	NoSandbox         bool          // Required inside most containers
	UserAgent         string        // User-Agent for all page loads
	ExecPath          string        // Browser binary; empty uses the default lookup
	BlockSubresources []string      // Resource classes to block: image, font, media, stylesheet
	ProtocolTimeout   time.Duration // Budget for a single devtools action
}

// RetryPolicy is the reusable retry value applied at the embed extraction and
// stream resolution boundaries.
type RetryPolicy struct {
	MaxAttempts      int
	PerAttemptBudget time.Duration
}

// MetadataConfig points at the external search-by-title lookup.
type MetadataConfig struct {
	BaseURL        string        // Lookup API base (TMDB-shaped search endpoint)
	APIKey         string        // API key appended to lookup requests
	RequestsPerSec int           // Rate limit for lookup calls
	CacheSize      int           // Lookup cache capacity (normalized title -> record)
	CacheTTL       time.Duration // Lookup cache entry lifetime
	UserAgent      string        // User-Agent for lookup requests
	ReqReferrer    string        // Optional Referer header
}

// ConfigFile mirrors Config for JSON with durations as strings (e.g. "45s").
type ConfigFile struct {
	SiteBaseURL   string `json:"siteBaseURL"`
	TrendingPath  string `json:"trendingPath"`
	ListingPath   string `json:"listingPath"`
	OutputPath    string `json:"outputPath"`
	Debug         bool   `json:"debug"`
	ObfuscateUrls bool   `json:"obfuscateUrls"`

	ItemLimit    int `json:"itemLimit"`
	ChunkSize    int `json:"chunkSize"`
	RecycleEvery int `json:"recycleEvery"`
	MaxSessions  int `json:"maxSessions"`

	ScrollCycles int    `json:"scrollCycles"`
	ScrollDelay  string `json:"scrollDelay"`
	SettleDelay  string `json:"settleDelay"`
	NodeBudget   string `json:"nodeBudget"`

	DiscoveryBudget string `json:"discoveryBudget"`
	ExtractBudget   string `json:"extractBudget"`
	ResolveBudget   string `json:"resolveBudget"`
	EnrichBudget    string `json:"enrichBudget"`

	Providers []string      `json:"providers"`
	Facets    []FacetConfig `json:"facets"`

	Browser  BrowserConfigFile  `json:"browser"`
	Embed    RetryPolicyFile    `json:"embedRetry"`
	Resolve  RetryPolicyFile    `json:"resolveRetry"`
	Metadata MetadataConfigFile `json:"metadata"`

	VerifyStreams bool   `json:"verifyStreams"`
	StorePath     string `json:"storePath"`
	ResolutionTTL string `json:"resolutionTTL"`

	DeadEmbedThreshold int    `json:"deadEmbedThreshold"`
	DeadEmbedCooldown  string `json:"deadEmbedCooldown"`

	RefreshInterval string `json:"refreshInterval"`
}

// BrowserConfigFile is the JSON form of BrowserConfig.
type BrowserConfigFile struct {
	Headless          *bool    `json:"headless,omitempty"`
	NoSandbox         bool     `json:"noSandbox"`
	UserAgent         string   `json:"userAgent"`
	ExecPath          string   `json:"execPath"`
	BlockSubresources []string `json:"blockSubresources"`
	ProtocolTimeout   string   `json:"protocolTimeout"`
}

// RetryPolicyFile is the JSON form of RetryPolicy.
type RetryPolicyFile struct {
	MaxAttempts      int    `json:"maxAttempts"`
	PerAttemptBudget string `json:"perAttemptBudget"`
}

// MetadataConfigFile is the JSON form of MetadataConfig.
type MetadataConfigFile struct {
	BaseURL        string `json:"baseURL"`
	APIKey         string `json:"apiKey"`
	RequestsPerSec int    `json:"requestsPerSec"`
	CacheSize      int    `json:"cacheSize"`
	CacheTTL       string `json:"cacheTTL"`
	UserAgent      string `json:"userAgent"`
	ReqReferrer    string `json:"reqReferrer"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// DefaultPath is where LoadConfig looks when no explicit path is given.
const DefaultPath = "/settings/config.json"

// LoadConfig loads the configuration from file or returns the cached instance.
// A missing or invalid file falls back to defaults; a present file is overlaid
// on top of the defaults and then validated.
func LoadConfig(path string) *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	if configCache != nil {
		return configCache
	}

	if path == "" {
		path = DefaultPath
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		cfg = getDefaultConfig()
	}
	validateAndSetDefaults(cfg)

	configCache = cfg
	return cfg
}

// ClearConfigCache drops the cached config so the next LoadConfig re-reads it.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cf ConfigFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return convertFromFile(&cf)
}

func convertFromFile(cf *ConfigFile) (*Config, error) {
	cfg := getDefaultConfig()

	if cf.SiteBaseURL != "" {
		cfg.SiteBaseURL = cf.SiteBaseURL
	}
	if cf.TrendingPath != "" {
		cfg.TrendingPath = cf.TrendingPath
	}
	if cf.ListingPath != "" {
		cfg.ListingPath = cf.ListingPath
	}
	if cf.OutputPath != "" {
		cfg.OutputPath = cf.OutputPath
	}
	cfg.Debug = cf.Debug
	cfg.ObfuscateUrls = cf.ObfuscateUrls

	if cf.ItemLimit > 0 {
		cfg.ItemLimit = cf.ItemLimit
	}
	if cf.ChunkSize > 0 {
		cfg.ChunkSize = cf.ChunkSize
	}
	if cf.RecycleEvery > 0 {
		cfg.RecycleEvery = cf.RecycleEvery
	}
	if cf.MaxSessions > 0 {
		cfg.MaxSessions = cf.MaxSessions
	}
	if cf.ScrollCycles > 0 {
		cfg.ScrollCycles = cf.ScrollCycles
	}

	setDur(&cfg.ScrollDelay, cf.ScrollDelay)
	setDur(&cfg.SettleDelay, cf.SettleDelay)
	setDur(&cfg.NodeBudget, cf.NodeBudget)
	setDur(&cfg.DiscoveryBudget, cf.DiscoveryBudget)
	setDur(&cfg.ExtractBudget, cf.ExtractBudget)
	setDur(&cfg.ResolveBudget, cf.ResolveBudget)
	setDur(&cfg.EnrichBudget, cf.EnrichBudget)
	setDur(&cfg.ResolutionTTL, cf.ResolutionTTL)
	setDur(&cfg.DeadEmbedCooldown, cf.DeadEmbedCooldown)
	setDur(&cfg.RefreshInterval, cf.RefreshInterval)

	if len(cf.Providers) > 0 {
		cfg.Providers = cf.Providers
	}
	if len(cf.Facets) > 0 {
		cfg.Facets = cf.Facets
	}

	if cf.Browser.Headless != nil {
		cfg.Browser.Headless = *cf.Browser.Headless
	}
	cfg.Browser.NoSandbox = cfg.Browser.NoSandbox || cf.Browser.NoSandbox
	if cf.Browser.UserAgent != "" {
		cfg.Browser.UserAgent = cf.Browser.UserAgent
	}
	if cf.Browser.ExecPath != "" {
		cfg.Browser.ExecPath = cf.Browser.ExecPath
	}
	if len(cf.Browser.BlockSubresources) > 0 {
		cfg.Browser.BlockSubresources = cf.Browser.BlockSubresources
	}
	setDur(&cfg.Browser.ProtocolTimeout, cf.Browser.ProtocolTimeout)

	if cf.Embed.MaxAttempts > 0 {
		cfg.Embed.MaxAttempts = cf.Embed.MaxAttempts
	}
	setDur(&cfg.Embed.PerAttemptBudget, cf.Embed.PerAttemptBudget)
	if cf.Resolve.MaxAttempts > 0 {
		cfg.Resolve.MaxAttempts = cf.Resolve.MaxAttempts
	}
	setDur(&cfg.Resolve.PerAttemptBudget, cf.Resolve.PerAttemptBudget)

	if cf.Metadata.BaseURL != "" {
		cfg.Metadata.BaseURL = cf.Metadata.BaseURL
	}
	if cf.Metadata.APIKey != "" {
		cfg.Metadata.APIKey = cf.Metadata.APIKey
	}
	if cf.Metadata.RequestsPerSec > 0 {
		cfg.Metadata.RequestsPerSec = cf.Metadata.RequestsPerSec
	}
	if cf.Metadata.CacheSize > 0 {
		cfg.Metadata.CacheSize = cf.Metadata.CacheSize
	}
	setDur(&cfg.Metadata.CacheTTL, cf.Metadata.CacheTTL)
	if cf.Metadata.UserAgent != "" {
		cfg.Metadata.UserAgent = cf.Metadata.UserAgent
	}
	if cf.Metadata.ReqReferrer != "" {
		cfg.Metadata.ReqReferrer = cf.Metadata.ReqReferrer
	}

	cfg.VerifyStreams = cf.VerifyStreams
	if cf.StorePath != "" {
		cfg.StorePath = cf.StorePath
	}
	if cf.DeadEmbedThreshold > 0 {
		cfg.DeadEmbedThreshold = cf.DeadEmbedThreshold
	}

	return cfg, nil
}

// setDur parses a duration string into dst, leaving dst alone when the string
// is empty or malformed.
func setDur(dst *time.Duration, s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*dst = d
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

func getDefaultConfig() *Config {
	return &Config{
		SiteBaseURL:  "https://example-flix.to",
		TrendingPath: "/home",
		ListingPath:  "/movie",
		OutputPath:   "/data/playlist.m3u",

		ItemLimit:    24,
		ChunkSize:    3,
		RecycleEvery: 10,
		MaxSessions:  4,

		ScrollCycles: 4,
		ScrollDelay:  1500 * time.Millisecond,
		SettleDelay:  2 * time.Second,
		NodeBudget:   3 * time.Second,

		DiscoveryBudget: 90 * time.Second,
		ExtractBudget:   30 * time.Second,
		ResolveBudget:   25 * time.Second,
		EnrichBudget:    10 * time.Second,

		Providers: []string{"Vidcloud", "UpCloud", "Voe", "MixDrop", "Filelions"},
		Facets: []FacetConfig{
			{Name: "Action", Query: "action", MenuItem: "Action"},
			{Name: "Comedy", Query: "comedy", MenuItem: "Comedy"},
			{Name: "Drama", Query: "drama", MenuItem: "Drama"},
			{Name: "Horror", Query: "horror", MenuItem: "Horror"},
			{Name: "Romance", Query: "romance", MenuItem: "Romance"},
			{Name: "Sci-Fi", Query: "sci-fi", MenuItem: "Sci-Fi"},
			{Name: "Thriller", Query: "thriller", MenuItem: "Thriller"},
		},

		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			UserAgent:         defaultUserAgent,
			BlockSubresources: []string{"image", "font", "media"},
			ProtocolTimeout:   30 * time.Second,
		},
		Embed:   RetryPolicy{MaxAttempts: 2, PerAttemptBudget: 30 * time.Second},
		Resolve: RetryPolicy{MaxAttempts: 2, PerAttemptBudget: 30 * time.Second},

		Metadata: MetadataConfig{
			BaseURL:        "https://api.themoviedb.org/3",
			RequestsPerSec: 4,
			CacheSize:      2048,
			CacheTTL:       12 * time.Hour,
			UserAgent:      defaultUserAgent,
		},

		ResolutionTTL:      6 * time.Hour,
		DeadEmbedThreshold: 3,
		DeadEmbedCooldown:  24 * time.Hour,
		RefreshInterval:    12 * time.Hour,
	}
}

// validateAndSetDefaults clamps values that would make a run degenerate.
func validateAndSetDefaults(cfg *Config) {
	if cfg.ItemLimit <= 0 {
		cfg.ItemLimit = 24
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 3
	}
	if cfg.RecycleEvery <= 0 {
		cfg.RecycleEvery = 10
	}
	// one session per concurrent category plus the dedicated trending session
	if cfg.MaxSessions < cfg.ChunkSize+1 {
		cfg.MaxSessions = cfg.ChunkSize + 1
	}
	if cfg.ScrollCycles <= 0 {
		cfg.ScrollCycles = 4
	}
	if cfg.Embed.MaxAttempts <= 0 {
		cfg.Embed.MaxAttempts = 1
	}
	if cfg.Resolve.MaxAttempts <= 0 {
		cfg.Resolve.MaxAttempts = 1
	}
	if cfg.ResolveBudget <= 0 {
		cfg.ResolveBudget = 25 * time.Second
	}
	if cfg.Metadata.RequestsPerSec <= 0 {
		cfg.Metadata.RequestsPerSec = 1
	}
	if cfg.Metadata.CacheSize <= 0 {
		cfg.Metadata.CacheSize = 256
	}
	if cfg.Metadata.CacheTTL <= 0 {
		cfg.Metadata.CacheTTL = time.Hour
	}
	if cfg.DeadEmbedThreshold <= 0 {
		cfg.DeadEmbedThreshold = 3
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 12 * time.Hour
	}
}

// CreateExampleConfig writes a starter config file to path.
func CreateExampleConfig(path string) error {
	cfg := getDefaultConfig()
	headless := cfg.Browser.Headless

	cf := ConfigFile{
		SiteBaseURL:  cfg.SiteBaseURL,
		TrendingPath: cfg.TrendingPath,
		ListingPath:  cfg.ListingPath,
		OutputPath:   cfg.OutputPath,

		ItemLimit:    cfg.ItemLimit,
		ChunkSize:    cfg.ChunkSize,
		RecycleEvery: cfg.RecycleEvery,
		MaxSessions:  cfg.MaxSessions,

		ScrollCycles: cfg.ScrollCycles,
		ScrollDelay:  cfg.ScrollDelay.String(),
		SettleDelay:  cfg.SettleDelay.String(),
		NodeBudget:   cfg.NodeBudget.String(),

		DiscoveryBudget: cfg.DiscoveryBudget.String(),
		ExtractBudget:   cfg.ExtractBudget.String(),
		ResolveBudget:   cfg.ResolveBudget.String(),
		EnrichBudget:    cfg.EnrichBudget.String(),

		Providers: cfg.Providers,
		Facets:    cfg.Facets,

		Browser: BrowserConfigFile{
			Headless:          &headless,
			NoSandbox:         cfg.Browser.NoSandbox,
			UserAgent:         cfg.Browser.UserAgent,
			BlockSubresources: cfg.Browser.BlockSubresources,
			ProtocolTimeout:   cfg.Browser.ProtocolTimeout.String(),
		},
		Embed: RetryPolicyFile{
			MaxAttempts:      cfg.Embed.MaxAttempts,
			PerAttemptBudget: cfg.Embed.PerAttemptBudget.String(),
		},
		Resolve: RetryPolicyFile{
			MaxAttempts:      cfg.Resolve.MaxAttempts,
			PerAttemptBudget: cfg.Resolve.PerAttemptBudget.String(),
		},
		Metadata: MetadataConfigFile{
			BaseURL:        cfg.Metadata.BaseURL,
			APIKey:         "your-api-key",
			RequestsPerSec: cfg.Metadata.RequestsPerSec,
			CacheSize:      cfg.Metadata.CacheSize,
			CacheTTL:       cfg.Metadata.CacheTTL.String(),
			UserAgent:      cfg.Metadata.UserAgent,
		},

		VerifyStreams: cfg.VerifyStreams,
		StorePath:     "/data/vodharvest.db",
		ResolutionTTL: cfg.ResolutionTTL.String(),

		DeadEmbedThreshold: cfg.DeadEmbedThreshold,
		DeadEmbedCooldown:  cfg.DeadEmbedCooldown.String(),

		RefreshInterval: cfg.RefreshInterval.String(),
	}

	data, err := json.MarshalIndent(&cf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
