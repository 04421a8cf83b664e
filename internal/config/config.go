package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPollInterval is the fixed re-fetch interval used when the config
// does not override it.
const DefaultPollInterval = 5 * time.Second

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	APIBaseURL       string `toml:"api_base_url"`
	TokenPath        string `toml:"token_path"`
	DefaultSession   string `toml:"default_session"`
	PollIntervalSecs int    `toml:"poll_interval_secs"`
}

// PollInterval returns the configured poll interval, falling back to the default.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSecs <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
