// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-monolith/mono/pkg/types"
)

var logLevels = map[string]types.LogLevel{
	"debug": types.LogLevelDebug,
	"info":  types.LogLevelInfo,
	"warn":  types.LogLevelWarn,
	"error": types.LogLevelError,
}

// Config holds the chat server settings.
type Config struct {
	Port               string        `env:"PORT"                 envDefault:"3001"`
	DefaultRooms       []string      `env:"DEFAULT_ROOMS"        envDefault:"General,Random,Tech" envSeparator:","`
	MaxHistory         int           `env:"MAX_HISTORY"          envDefault:"100"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT"     envDefault:"30s"`
	LogLevel           string        `env:"LOG_LEVEL"            envDefault:"info"`
	OutboxSize         int           `env:"OUTBOX_SIZE"          envDefault:"256"`
	RateLimitMessages  int           `env:"RATE_LIMIT_MESSAGES"  envDefault:"120"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW"    envDefault:"1m"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DefaultRooms = normalizeRooms(cfg.DefaultRooms)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("MAX_HISTORY must be positive, got %d", c.MaxHistory)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize)
	}
	if c.RateLimitMessages < 0 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES must not be negative, got %d", c.RateLimitMessages)
	}
	if c.RateLimitMessages > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Level maps LOG_LEVEL to the application log level.
func (c Config) Level() (types.LogLevel, error) {
	level, ok := logLevels[strings.ToLower(strings.TrimSpace(c.LogLevel))]
	if !ok {
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return level, nil
}

// Verbose reports whether informational logs are enabled.
func (c Config) Verbose() bool {
	level, err := c.Level()
	return err == nil && level <= types.LogLevelInfo
}

// normalizeRooms trims names, drops blanks and duplicates, and keeps order.
func normalizeRooms(rooms []string) []string {
	seen := make(map[string]bool, len(rooms))
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
