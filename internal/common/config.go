// Package common provides shared utilities for stockfetch
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Provider names accepted in [provider] name.
const (
	ProviderYahoo = "yahoo"
	ProviderEODHD = "eodhd"
)

// Config holds all configuration for stockfetch
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Provider    ProviderConfig `toml:"provider"`
	Clients     ClientsConfig  `toml:"clients"`
	Cache       CacheConfig    `toml:"cache"`
	Export      ExportConfig   `toml:"export"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ProviderConfig selects the finance data provider.
type ProviderConfig struct {
	Name string `toml:"name"` // "yahoo" or "eodhd"
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Yahoo YahooConfig `toml:"yahoo"`
	EODHD EODHDConfig `toml:"eodhd"`
}

// YahooConfig holds Yahoo Finance configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	CookieURL string `toml:"cookie_url"`
	UserAgent string `toml:"user_agent"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheConfig bounds the fetch memo cache.
type CacheConfig struct {
	MaxEntries    int    `toml:"max_entries"`
	TTL           string `toml:"ttl"`            // "0" or empty keeps entries for the process lifetime
	SweepSchedule string `toml:"sweep_schedule"` // cron spec, empty disables the sweeper
}

// GetTTL parses the entry time-to-live. Zero means no expiry.
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ExportConfig controls the filesystem export of price tables.
type ExportConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Provider: ProviderConfig{Name: ProviderYahoo},
		Clients: ClientsConfig{
			Yahoo: YahooConfig{
				BaseURL:   "https://query2.finance.yahoo.com",
				CookieURL: "https://fc.yahoo.com",
				UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
				RateLimit: 2,
				Timeout:   "30s",
			},
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Cache: CacheConfig{
			MaxEntries:    128,
			TTL:           "0",
			SweepSchedule: "@every 10m",
		},
		Export: ExportConfig{
			Enabled: false,
			Dir:     ".",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Outputs:  []string{"console"},
			FilePath: "./logs/stockfetch.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("STOCKFETCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("STOCKFETCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("STOCKFETCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("STOCKFETCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if provider := os.Getenv("STOCKFETCH_PROVIDER"); provider != "" {
		config.Provider.Name = strings.ToLower(strings.TrimSpace(provider))
	}

	if dir := os.Getenv("STOCKFETCH_EXPORT_DIR"); dir != "" {
		config.Export.Dir = dir
		config.Export.Enabled = true
	}

	for _, name := range []string{"EODHD_API_KEY", "STOCKFETCH_EODHD_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			config.Clients.EODHD.APIKey = key
			break
		}
	}
}

// Validate checks values that would otherwise fail late at request time.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderYahoo:
	case ProviderEODHD:
		if c.Clients.EODHD.APIKey == "" {
			return fmt.Errorf("provider %q requires clients.eodhd.api_key or EODHD_API_KEY", c.Provider.Name)
		}
	default:
		return fmt.Errorf("unknown provider %q (want %q or %q)", c.Provider.Name, ProviderYahoo, ProviderEODHD)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
