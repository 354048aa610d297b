package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func resetEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRADECORE_PORT", "TRADECORE_LOG_LEVEL", "TRADECORE_DATA_DIR",
		"TRADECORE_DATABASE_PATH", "TRADECORE_FEED_URL", "TRADECORE_VENUE_URL",
		"TRADECORE_VENUE_API_KEY", "TRADECORE_API_TOKEN_HASH",
		"TRADECORE_NOTIFY_URLS", "TRADECORE_RETENTION_DAYS",
	} {
		os.Unsetenv(key)
	}
}

// =============================================================================
// Defaults
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	resetEnv(t)
	c := Load("")

	if c.Port != "3190" {
		t.Errorf("Port = %q, want 3190", c.Port)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", c.LogLevel)
	}
	if c.DatabasePath != filepath.Join("./data", "tradecore.db") {
		t.Errorf("DatabasePath = %q", c.DatabasePath)
	}
	if c.LogDir != filepath.Join("./data", "logs") {
		t.Errorf("LogDir = %q", c.LogDir)
	}
	if c.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", c.RetentionDays)
	}
	if c.NotifyThrottle != 60*time.Second {
		t.Errorf("NotifyThrottle = %v, want 60s", c.NotifyThrottle)
	}
}

// =============================================================================
// YAML file layering
// =============================================================================

func TestLoad_YAMLFile(t *testing.T) {
	resetEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
port: "9000"
log_level: debug
feed_url: wss://feed.example/stream
notify_urls:
  - discord://token@channel
retention_days: 7
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	c := Load(path)
	if c.Port != "9000" {
		t.Errorf("Port = %q, want 9000", c.Port)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", c.LogLevel)
	}
	if c.FeedURL != "wss://feed.example/stream" {
		t.Errorf("FeedURL = %q", c.FeedURL)
	}
	if len(c.NotifyURLs) != 1 || c.NotifyURLs[0] != "discord://token@channel" {
		t.Errorf("NotifyURLs = %v", c.NotifyURLs)
	}
	if c.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", c.RetentionDays)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	resetEnv(t)
	c := Load("/nonexistent/config.yml")
	if c.Port != "3190" {
		t.Errorf("missing file should fall back to defaults, Port = %q", c.Port)
	}
}

// =============================================================================
// Environment layering
// =============================================================================

func TestLoad_EnvOverridesFile(t *testing.T) {
	resetEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("port: \"9000\"\n"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("TRADECORE_PORT", "9100")
	defer os.Unsetenv("TRADECORE_PORT")

	c := Load(path)
	if c.Port != "9100" {
		t.Errorf("Port = %q, env should override file", c.Port)
	}
}

func TestLoad_NotifyURLsFromEnv(t *testing.T) {
	resetEnv(t)
	os.Setenv("TRADECORE_NOTIFY_URLS", "slack://a, telegram://b ,")
	defer os.Unsetenv("TRADECORE_NOTIFY_URLS")

	c := Load("")
	if len(c.NotifyURLs) != 2 {
		t.Fatalf("NotifyURLs = %v, want 2 entries", c.NotifyURLs)
	}
	if c.NotifyURLs[0] != "slack://a" || c.NotifyURLs[1] != "telegram://b" {
		t.Errorf("NotifyURLs = %v", c.NotifyURLs)
	}
}

// =============================================================================
// Flag overrides
// =============================================================================

func TestApplyFlags_OverridesAndRederives(t *testing.T) {
	resetEnv(t)
	Load("")

	dataDir := t.TempDir()
	port := "9200"
	ApplyFlags(FlagOverrides{Port: &port, DataDir: &dataDir})

	c := Get()
	if c.Port != "9200" {
		t.Errorf("Port = %q, want 9200", c.Port)
	}
	if c.DatabasePath != filepath.Join(dataDir, "tradecore.db") {
		t.Errorf("DatabasePath = %q, want rederived under %q", c.DatabasePath, dataDir)
	}
	if c.LogDir != filepath.Join(dataDir, "logs") {
		t.Errorf("LogDir = %q, want rederived under %q", c.LogDir, dataDir)
	}
}

func TestApplyFlags_EmptyValuesIgnored(t *testing.T) {
	resetEnv(t)
	Load("")

	empty := ""
	ApplyFlags(FlagOverrides{Port: &empty})
	if Get().Port != "3190" {
		t.Errorf("empty flag should not override, Port = %q", Get().Port)
	}
}

// =============================================================================
// Singleton helpers
// =============================================================================

func TestSetForTesting(t *testing.T) {
	SetForTesting(NewTestConfig())
	if Get() == nil {
		t.Fatal("Get() should return the injected config")
	}
}
