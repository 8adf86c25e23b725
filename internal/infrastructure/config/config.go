package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/paths"
)

// Prefix is prepended to every environment variable name
const Prefix = "AGGREGATE"

// Config holds all process configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Options   OptionsConfig
	Storage   StorageConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP inspection server configuration.
type ServerConfig struct {
	Port    string `envconfig:"PORT" default:"8790"`
	Host    string `envconfig:"HOST" default:"127.0.0.1"`
	Enabled bool   `envconfig:"HTTP_ENABLED" default:"true"`
}

// BrowserConfig holds the DevTools endpoint and profile location.
type BrowserConfig struct {
	CDPAddress string `envconfig:"CDP_ADDRESS" default:"127.0.0.1"`
	CDPPort    int    `envconfig:"CDP_PORT" default:"9222"`
	// ProfileDir holds the Bookmarks file
	ProfileDir string `envconfig:"PROFILE_DIR"`
	// DetectProfile looks for a default browser profile when ProfileDir is empty
	DetectProfile bool `envconfig:"DETECT_PROFILE" default:"true"`
}

// OptionsConfig points at the observable options file.
type OptionsConfig struct {
	File  string `envconfig:"OPTIONS_FILE"`
	Watch bool   `envconfig:"OPTIONS_WATCH" default:"true"`
}

// StorageConfig holds the durable KV store location.
type StorageConfig struct {
	Path      string `envconfig:"STORE_PATH"`
	Ephemeral bool   `envconfig:"STORE_EPHEMERAL" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CDPURL returns the DevTools HTTP endpoint used by the remote allocator.
func (b BrowserConfig) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", b.CDPAddress, b.CDPPort)
}

// Addr returns the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Load loads configuration from environment variables after reading an
// optional .env file. Variables already set win over the file.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env file is not an error
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
	return &Config{
		Server: ServerConfig{
			Port:    "8790",
			Host:    "127.0.0.1",
			Enabled: true,
		},
		Browser: BrowserConfig{
			CDPAddress:    "127.0.0.1",
			CDPPort:       9222,
			DetectProfile: true,
		},
		Options: OptionsConfig{
			Watch: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}

// ResolvePaths fills empty locations with the per-user defaults. The
// options file is only picked up when it exists; bookmark lookups stay
// disabled when no profile is found.
func (c *Config) ResolvePaths() error {
	if c.Storage.Path == "" && !c.Storage.Ephemeral {
		path, err := paths.StoreFile()
		if err != nil {
			return fmt.Errorf("failed to resolve store path: %w", err)
		}
		c.Storage.Path = path
	}
	if c.Options.File == "" {
		if path, err := paths.OptionsFile(); err == nil {
			if _, err := os.Stat(path); err == nil {
				c.Options.File = path
			}
		}
	}
	if c.Browser.ProfileDir == "" && c.Browser.DetectProfile {
		if dir, ok := paths.DetectProfile(); ok {
			c.Browser.ProfileDir = dir
		}
	}
	return nil
}
