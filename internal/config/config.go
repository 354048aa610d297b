// Package config loads application configuration from an optional YAML file,
// environment variables (TRADECORE_*), and command-line flag overrides, in
// that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	// Port is the HTTP status API listen port (default: 3190)
	Port string `yaml:"port"`

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string `yaml:"log_level"`

	// DataDir is the directory for persistent data (database, logs)
	// Default: ./data
	DataDir string `yaml:"data_dir"`

	// DatabasePath is the SQLite journal file path (default: <DataDir>/tradecore.db)
	DatabasePath string `yaml:"database_path"`

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string `yaml:"log_dir"`

	// FeedURL is the websocket endpoint of the market data feed
	FeedURL string `yaml:"feed_url"`

	// VenueURL is the base URL of the execution venue's order API
	VenueURL string `yaml:"venue_url"`

	// VenueAPIKey authenticates order submissions to the venue
	VenueAPIKey string `yaml:"venue_api_key"`

	// APITokenHash is the bcrypt hash of the status API token; empty disables auth
	APITokenHash string `yaml:"api_token_hash"`

	// NotifyURLs are shoutrrr URLs that receive lifecycle and failure alerts
	NotifyURLs []string `yaml:"notify_urls"`

	// NotifyThrottle is the minimum spacing between alerts of the same kind (default: 60s)
	NotifyThrottle time.Duration `yaml:"notify_throttle"`

	// RetentionDays is the number of days to keep journaled events (default: 90)
	// Set to 0 to disable automatic pruning
	RetentionDays int `yaml:"retention_days"`

	// FeedReconnectWait is the initial backoff between feed reconnect attempts (default: 2s)
	FeedReconnectWait time.Duration `yaml:"feed_reconnect_wait"`
}

// Global singleton
var cfg *Config

func defaults() *Config {
	return &Config{
		Port:              "3190",
		LogLevel:          "info",
		DataDir:           "./data",
		NotifyThrottle:    60 * time.Second,
		RetentionDays:     90,
		FeedReconnectWait: 2 * time.Second,
	}
}

// Load reads configuration, layering the optional YAML file at path and then
// TRADECORE_* environment variables over the defaults. Should be called once
// at application startup; an empty path skips the file.
func Load(path string) *Config {
	c := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, c)
		}
	}

	applyEnv(c)
	normalize(c)

	cfg = c
	return cfg
}

func applyEnv(c *Config) {
	if v := os.Getenv("TRADECORE_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("TRADECORE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRADECORE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TRADECORE_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("TRADECORE_FEED_URL"); v != "" {
		c.FeedURL = v
	}
	if v := os.Getenv("TRADECORE_VENUE_URL"); v != "" {
		c.VenueURL = v
	}
	if v := os.Getenv("TRADECORE_VENUE_API_KEY"); v != "" {
		c.VenueAPIKey = v
	}
	if v := os.Getenv("TRADECORE_API_TOKEN_HASH"); v != "" {
		c.APITokenHash = v
	}
	if v := os.Getenv("TRADECORE_NOTIFY_URLS"); v != "" {
		urls := strings.Split(v, ",")
		c.NotifyURLs = c.NotifyURLs[:0]
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				c.NotifyURLs = append(c.NotifyURLs, u)
			}
		}
	}
	if v := os.Getenv("TRADECORE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RetentionDays = n
		}
	}
}

// normalize fills derived paths and clamps nonsense values.
func normalize(c *Config) {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "tradecore.db")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.DataDir, "logs")
	}
	if c.NotifyThrottle <= 0 {
		c.NotifyThrottle = 60 * time.Second
	}
	if c.FeedReconnectWait <= 0 {
		c.FeedReconnectWait = 2 * time.Second
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
}

// FlagOverrides carries command-line flag values; nil entries, empty strings
// and a negative RetentionDays are ignored so flags only override what the
// user actually set. A RetentionDays of 0 is applied (it disables pruning).
type FlagOverrides struct {
	Port          *string
	LogLevel      *string
	DataDir       *string
	DatabasePath  *string
	FeedURL       *string
	VenueURL      *string
	RetentionDays *int
}

// ApplyFlags applies command-line flag overrides on top of the loaded config.
func ApplyFlags(f FlagOverrides) {
	if cfg == nil {
		cfg = defaults()
	}
	if f.Port != nil && *f.Port != "" {
		cfg.Port = *f.Port
	}
	if f.LogLevel != nil && *f.LogLevel != "" {
		cfg.LogLevel = *f.LogLevel
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.DataDir = *f.DataDir
		cfg.DatabasePath = ""
		cfg.LogDir = ""
	}
	if f.DatabasePath != nil && *f.DatabasePath != "" {
		cfg.DatabasePath = *f.DatabasePath
	}
	if f.FeedURL != nil && *f.FeedURL != "" {
		cfg.FeedURL = *f.FeedURL
	}
	if f.VenueURL != nil && *f.VenueURL != "" {
		cfg.VenueURL = *f.VenueURL
	}
	if f.RetentionDays != nil && *f.RetentionDays >= 0 {
		cfg.RetentionDays = *f.RetentionDays
	}
	normalize(cfg)
}

// Get returns the loaded configuration, loading defaults if Load was never
// called.
func Get() *Config {
	if cfg == nil {
		cfg = defaults()
		normalize(cfg)
	}
	return cfg
}

// SetForTesting replaces the singleton for tests.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a config suitable for isolated tests.
func NewTestConfig() *Config {
	c := defaults()
	c.DataDir = os.TempDir()
	normalize(c)
	return c
}
