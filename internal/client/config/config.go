package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the radsync client.
type Config struct {
	BaseURL             string
	DBPath              string
	QueueDir            string
	DeltaInterval       time.Duration
	FlushInterval       time.Duration
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	DeviceID            string
	ActorID             string
	LogFile             string
	LogLevel            string
	PersistValidators   bool
	BatchSize           int
	MaxDeltaRounds      int
}

// DefaultDataDir is where the local database and queue live unless
// configured otherwise.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "radsync")
	}
	return ".radsync"
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	dir := DefaultDataDir()
	c.BaseURL = "http://127.0.0.1:8787"
	c.DBPath = filepath.Join(dir, "local.db")
	c.QueueDir = filepath.Join(dir, "queue")
	c.DeltaInterval = 15 * time.Minute
	c.FlushInterval = time.Minute
	c.OnlineCheckInterval = 10 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.LogLevel = "info"
	c.BatchSize = 100
	c.MaxDeltaRounds = 10
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the JSON file named by -c/--config in args (if any). Command-line flags are
// bound on top of the result by the CLI.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
