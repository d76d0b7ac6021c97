// Package config loads the user-editable session settings.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Cache  CacheConfig  `toml:"cache"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	// BaseURL is the server root, with or without a trailing slash.
	BaseURL string `toml:"base_url"`
	// Lang selects the language prefix of API paths.
	Lang string `toml:"lang"`
}

type CacheConfig struct {
	// ImageEntries bounds the in-memory image cache.
	ImageEntries int `toml:"image_entries"`
}

type LogConfig struct {
	// Level is the minimum level written to the log file.
	Level string `toml:"level"`
	// Console additionally mirrors warnings and errors to stderr.
	Console bool `toml:"console"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "https://chatcube.org/",
			Lang:    "en",
		},
		Cache: CacheConfig{ImageEntries: 256},
		Log:   LogConfig{Level: "info", Console: true},
	}
}

// Load reads the settings file over the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url must not be empty")
	}
	if c.Server.Lang == "" {
		return fmt.Errorf("server.lang must not be empty")
	}
	if c.Cache.ImageEntries <= 0 {
		return fmt.Errorf("cache.image_entries must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
