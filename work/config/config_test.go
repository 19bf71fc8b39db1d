package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	ClearConfigCache()
	t.Cleanup(ClearConfigCache)

	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if cfg.SiteBaseURL == "" {
		t.Fatal("defaults missing site base URL")
	}
	if cfg.ItemLimit != 24 {
		t.Fatalf("ItemLimit = %d, want 24", cfg.ItemLimit)
	}
	if len(cfg.Facets) == 0 {
		t.Fatal("defaults missing facets")
	}
	if len(cfg.Providers) == 0 {
		t.Fatal("defaults missing providers")
	}
}

func TestLoadConfigIsCached(t *testing.T) {
	ClearConfigCache()
	t.Cleanup(ClearConfigCache)

	a := LoadConfig("")
	b := LoadConfig("")
	if a != b {
		t.Fatal("LoadConfig returned distinct instances")
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	ClearConfigCache()
	t.Cleanup(ClearConfigCache)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"siteBaseURL": "https://other-site.example",
		"itemLimit": 8,
		"chunkSize": 2,
		"resolveBudget": "40s",
		"browser": {"headless": false, "userAgent": "custom-agent"},
		"resolveRetry": {"maxAttempts": 5, "perAttemptBudget": "45s"},
		"metadata": {"apiKey": "k123", "cacheTTL": "1h"},
		"facets": [{"name": "Horror", "query": "horror", "menuItem": "Horror"}]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)

	if cfg.SiteBaseURL != "https://other-site.example" {
		t.Errorf("SiteBaseURL = %q", cfg.SiteBaseURL)
	}
	if cfg.ItemLimit != 8 {
		t.Errorf("ItemLimit = %d, want 8", cfg.ItemLimit)
	}
	if cfg.ResolveBudget != 40*time.Second {
		t.Errorf("ResolveBudget = %s, want 40s", cfg.ResolveBudget)
	}
	if cfg.Browser.Headless {
		t.Error("headless override ignored")
	}
	if cfg.Browser.UserAgent != "custom-agent" {
		t.Errorf("UserAgent = %q", cfg.Browser.UserAgent)
	}
	if cfg.Resolve.MaxAttempts != 5 || cfg.Resolve.PerAttemptBudget != 45*time.Second {
		t.Errorf("Resolve policy = %+v", cfg.Resolve)
	}
	if cfg.Metadata.APIKey != "k123" || cfg.Metadata.CacheTTL != time.Hour {
		t.Errorf("Metadata = %+v", cfg.Metadata)
	}
	if len(cfg.Facets) != 1 || cfg.Facets[0].Name != "Horror" {
		t.Errorf("Facets = %+v", cfg.Facets)
	}
	// untouched fields keep their defaults
	if cfg.TrendingPath != "/home" {
		t.Errorf("TrendingPath = %q", cfg.TrendingPath)
	}
}

func TestValidateSessionCeiling(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.ChunkSize = 6
	cfg.MaxSessions = 3
	validateAndSetDefaults(cfg)
	if cfg.MaxSessions != 7 {
		t.Fatalf("MaxSessions = %d, want ChunkSize+1 = 7", cfg.MaxSessions)
	}
}

func TestSetDur(t *testing.T) {
	d := 5 * time.Second
	setDur(&d, "")
	if d != 5*time.Second {
		t.Fatal("empty string changed the value")
	}
	setDur(&d, "bogus")
	if d != 5*time.Second {
		t.Fatal("malformed string changed the value")
	}
	setDur(&d, "90s")
	if d != 90*time.Second {
		t.Fatalf("d = %s, want 90s", d)
	}
}

func TestCreateExampleConfigRoundTrips(t *testing.T) {
	ClearConfigCache()
	t.Cleanup(ClearConfigCache)

	path := filepath.Join(t.TempDir(), "example.json")
	if err := CreateExampleConfig(path); err != nil {
		t.Fatalf("CreateExampleConfig: %v", err)
	}

	cfg := LoadConfig(path)
	defaults := getDefaultConfig()
	if cfg.SiteBaseURL != defaults.SiteBaseURL {
		t.Errorf("SiteBaseURL = %q, want %q", cfg.SiteBaseURL, defaults.SiteBaseURL)
	}
	if cfg.ScrollDelay != defaults.ScrollDelay {
		t.Errorf("ScrollDelay = %s, want %s", cfg.ScrollDelay, defaults.ScrollDelay)
	}
	if cfg.StorePath != "/data/vodharvest.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
}
