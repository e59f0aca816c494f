// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the livechat service.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"LIVECHAT_RATE_LIMIT_BURST" envDefault:"5"`
	RefillInterval time.Duration `env:"LIVECHAT_RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls
// and the ephemeral-state expiry thresholds.
type Config struct {
	Port           string   `env:"LIVECHAT_PORT" envDefault:":8080"`
	AllowedOrigins []string `env:"LIVECHAT_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	DBPath         string   `env:"LIVECHAT_DB_PATH" envDefault:"livechat.db"`
	MaxMessageSize int64    `env:"LIVECHAT_MAX_MESSAGE_SIZE" envDefault:"4096"`

	RateLimit RateLimitConfig

	// TypingExpiry bounds how long a peer can observe a stale typing
	// indicator when no stop signal arrives.
	TypingExpiry time.Duration `env:"LIVECHAT_TYPING_EXPIRY" envDefault:"5s"`
	// SweepInterval is the cadence of the background sweep over typing markers.
	SweepInterval time.Duration `env:"LIVECHAT_SWEEP_INTERVAL" envDefault:"1s"`

	PersistTimeout  time.Duration `env:"LIVECHAT_PERSIST_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout time.Duration `env:"LIVECHAT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	HistoryLimit    int           `env:"LIVECHAT_HISTORY_LIMIT" envDefault:"50"`
}

// NewConfig creates a Config instance populated with default values for all
// settings.
func NewConfig() Config {
	return sanitizeConfig(Config{})
}

// NewConfigFromEnv creates a Config instance from environment variables,
// falling back to defaults for anything unset.
func NewConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:8080"}
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "livechat.db"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = 5 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return cfg
}
