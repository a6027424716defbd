package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all backend configuration.
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Storage   StorageConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"VTERM_PORT" default:"7391"`
	Host string `envconfig:"VTERM_HOST" default:"127.0.0.1"`
}

// SessionConfig holds PTY session configuration.
//
// The timing knobs are deliberately configurable: the right idle threshold
// and poll cadence depend on shell prompt behavior and machine load.
type SessionConfig struct {
	Shell         string        `envconfig:"VTERM_SHELL" default:""`
	LoginShell    bool          `envconfig:"VTERM_LOGIN_SHELL" default:"true"`
	IdleThreshold time.Duration `envconfig:"VTERM_IDLE_THRESHOLD" default:"3s"`
	ActivityTick  time.Duration `envconfig:"VTERM_ACTIVITY_TICK" default:"1s"`
	PollInterval  time.Duration `envconfig:"VTERM_POLL_INTERVAL" default:"2s"`
	DefaultCols   int           `envconfig:"VTERM_DEFAULT_COLS" default:"80"`
	DefaultRows   int           `envconfig:"VTERM_DEFAULT_ROWS" default:"24"`
}

// StorageConfig holds document store configuration.
type StorageConfig struct {
	Dir string `envconfig:"VTERM_DATA_DIR" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"VTERM_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"VTERM_LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
// Disabled by default: the transport is local IPC, not a public API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"VTERM_RATE_LIMIT_RPS" default:"200"`
	Burst             int  `envconfig:"VTERM_RATE_LIMIT_BURST" default:"400"`
	Enabled           bool `envconfig:"VTERM_RATE_LIMIT_ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyFallbacks()
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
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
		Server: ServerConfig{
			Port: "7391",
			Host: "127.0.0.1",
		},
		Session: SessionConfig{
			LoginShell:    true,
			IdleThreshold: 3 * time.Second,
			ActivityTick:  time.Second,
			PollInterval:  2 * time.Second,
			DefaultCols:   80,
			DefaultRows:   24,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			Enabled:           false,
		},
	}
	cfg.applyFallbacks()
	return cfg
}

// applyFallbacks fills values that cannot be expressed as static defaults.
func (c *Config) applyFallbacks() {
	if c.Storage.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Storage.Dir = filepath.Join(home, ".vterm")
		} else {
			c.Storage.Dir = filepath.Join(os.TempDir(), "vterm")
		}
	}
	if c.Session.IdleThreshold <= 0 {
		c.Session.IdleThreshold = 3 * time.Second
	}
	if c.Session.ActivityTick <= 0 {
		c.Session.ActivityTick = time.Second
	}
	if c.Session.PollInterval <= 0 {
		c.Session.PollInterval = 2 * time.Second
	}
}
