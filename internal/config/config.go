// Package config loads taxpkg configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Store   StoreConfig
	Fetch   FetchConfig
	Scan    ScanConfig
	Logging LogConfig
}

// StoreConfig locates the persisted registry.
type StoreConfig struct {
	// Path of the registry file; .json, .toml, .yaml and .yml are recognized.
	Path string `envconfig:"TAXPKG_CONFIG" default:"~/.config/taxpkg/taxonomyPackages.json"`
}

// FetchConfig controls downloads of web-hosted packages.
type FetchConfig struct {
	CacheDir   string        `envconfig:"TAXPKG_CACHE_DIR" default:"~/.cache/taxpkg"`
	Timeout    time.Duration `envconfig:"TAXPKG_FETCH_TIMEOUT" default:"2m"`
	MaxRetries int           `envconfig:"TAXPKG_FETCH_RETRIES" default:"3"`
	UserAgent  string        `envconfig:"TAXPKG_USER_AGENT" default:"taxpkg/1.0"`
}

// ScanConfig controls the update scan.
type ScanConfig struct {
	Concurrency int `envconfig:"TAXPKG_SCAN_CONCURRENCY" default:"8"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"TAXPKG_LOG_LEVEL" default:"warn"`
	Development bool   `envconfig:"TAXPKG_LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables and expands ~ in paths.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Path: "~/.config/taxpkg/taxonomyPackages.json",
		},
		Fetch: FetchConfig{
			CacheDir:   "~/.cache/taxpkg",
			Timeout:    2 * time.Minute,
			MaxRetries: 3,
			UserAgent:  "taxpkg/1.0",
		},
		Scan: ScanConfig{
			Concurrency: 8,
		},
		Logging: LogConfig{
			Level:       "warn",
			Development: false,
		},
	}
	_ = cfg.expand()
	return cfg
}

func (c *Config) expand() error {
	var err error
	if c.Store.Path, err = ExpandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store path: %w", err)
	}
	if c.Fetch.CacheDir, err = ExpandPath(c.Fetch.CacheDir); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
