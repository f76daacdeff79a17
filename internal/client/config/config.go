package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds runtime settings for the GophJournal CLI.
//
// Fields:
//   - ServerURL: base URL of the backend HTTP API.
//   - HealthAddr: host:port of the backend gRPC health endpoint.
//   - DataDir: directory holding the local database and the file keyring.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - RequestTimeout: per-request timeout of the HTTP client.
//   - LimitsTTL: how long fetched server limits are reused.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerURL           string
	HealthAddr          string
	DataDir             string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	LimitsTTL           time.Duration
	LogLevel            string
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "gophjournal")
	}
	return ".gophjournal"
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"
	c.DataDir = defaultDataDir()
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.LimitsTTL = 5 * time.Minute
	c.LogLevel = "warn"
}

// DSN is the SQLite data source of the local store.
func (c *Config) DSN() string {
	return "file:" + filepath.Join(c.DataDir, "journal.db")
}

// KeyringDir is where the file keyring backend keeps its items.
func (c *Config) KeyringDir() string {
	return filepath.Join(c.DataDir, "keyring")
}

// Level maps LogLevel to a slog level; unknown values mean warn.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
