// Package config loads the YAML-backed runtime configuration for the
// quadstore process: where the SQLite file lives, pool sizing, log level,
// and the SPARQL endpoint's bind address.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration.
type Config struct {
	// StorePath is the SQLite database file. ":memory:" opens a transient store.
	StorePath string `yaml:"store_path"`
	// MaxReaders is read from max_readers and defaults to 4. No other
	// package reads it: it does not bound ExecuteMany or any connection pool.
	MaxReaders int `yaml:"max_readers"`
	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"log_level"`
	// LogJSON selects JSON log output instead of the console writer.
	LogJSON bool `yaml:"log_json"`
	// ListenAddr is the SPARQL HTTP endpoint's bind address.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		StorePath:  "./quadstore.db",
		MaxReaders: 4,
		LogLevel:   "info",
		ListenAddr: "localhost:8080",
	}
}

// Load reads and parses a YAML config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.MaxReaders <= 0 {
		cfg.MaxReaders = 4
	}
	return cfg, nil
}
