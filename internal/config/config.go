// Package config loads interpreter settings from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the settings the CLI and embedders can tune.
type Config struct {
	Cache CacheConfig `toml:"cache"`
	Log   LogConfig   `toml:"log"`
	Repl  ReplConfig  `toml:"repl"`
}

// CacheConfig controls the compiled-chunk cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	// Level is commonlog verbosity: 0 silent through 2 debug.
	Level int `toml:"level"`
}

// ReplConfig controls interactive-session behaviour.
type ReplConfig struct {
	History string `toml:"history"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return Config{
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "slate", "chunks.db"),
		},
		Log: LogConfig{Level: 1},
		Repl: ReplConfig{
			History: filepath.Join(dir, "slate", "history"),
		},
	}
}

// Load reads a TOML config file, layering it over the defaults. A missing
// file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config: unknown key %q in %s", undecoded[0], path)
	}
	return cfg, nil
}
