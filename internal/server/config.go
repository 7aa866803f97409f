package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eos/lss/internal/game"
	"github.com/eos/lss/internal/logging"
	"github.com/eos/lss/internal/ratelimit"
	"github.com/eos/lss/internal/store"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refillInterval"`
}

// GameConfig tunes session lifetime.
type GameConfig struct {
	Duration   time.Duration `yaml:"duration"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
}

// ActionLimitConfig holds the per-user action budgets.
type ActionLimitConfig struct {
	Rules           map[string]ratelimit.Rule `yaml:"rules"`
	Default         ratelimit.Rule            `yaml:"default"`
	CleanupInterval time.Duration             `yaml:"cleanupInterval"`
}

// HistoryConfig points at the bbolt journal; empty keeps it in memory.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string            `yaml:"port"`
	AllowedOrigins  []string          `yaml:"allowedOrigins"`
	MaxMessageSize  int64             `yaml:"maxMessageSize"`
	RateLimit       RateLimitConfig   `yaml:"rateLimit"`
	Game            GameConfig        `yaml:"game"`
	ActionLimits    ActionLimitConfig `yaml:"actionLimits"`
	History         HistoryConfig     `yaml:"history"`
	Log             logging.Config    `yaml:"log"`
	ShutdownTimeout time.Duration     `yaml:"shutdownTimeout"`
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultBurst           = 20
	defaultShutdownTimeout = 10 * time.Second
)

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		Game: GameConfig{
			Duration:   game.DefaultGameDuration,
			SessionTTL: store.DefaultTTL,
		},
		ActionLimits: ActionLimitConfig{
			Rules:           ratelimit.DefaultRules(),
			Default:         ratelimit.DefaultRule,
			CleanupInterval: ratelimit.DefaultIdleTTL,
		},
		Log:             logging.Config{Level: "info"},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// LoadConfig starts from defaults, overlays the YAML file at path when one
// is given, then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnvOverrides(&cfg)
	return cfg.Sanitize(), nil
}

// Sanitize replaces unusable values with defaults.
func (c Config) Sanitize() Config {
	def := NewConfig()

	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = def.Port
	} else if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.Game.Duration <= 0 {
		c.Game.Duration = def.Game.Duration
	}
	if c.Game.SessionTTL <= 0 {
		c.Game.SessionTTL = def.Game.SessionTTL
	}
	if c.ActionLimits.Rules == nil {
		c.ActionLimits.Rules = def.ActionLimits.Rules
	}
	if c.ActionLimits.Default.Max <= 0 || c.ActionLimits.Default.Window <= 0 {
		c.ActionLimits.Default = def.ActionLimits.Default
	}
	if c.ActionLimits.CleanupInterval <= 0 {
		c.ActionLimits.CleanupInterval = def.ActionLimits.CleanupInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// ApplyEnvOverrides reads the process environment over cfg. Malformed
// values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}
	if d := os.Getenv("GAME_DURATION"); d != "" {
		cfg.Game.Duration = parseDuration(d, cfg.Game.Duration)
	}
	if d := os.Getenv("SESSION_TTL"); d != "" {
		cfg.Game.SessionTTL = parseDuration(d, cfg.Game.SessionTTL)
	}
	if path := os.Getenv("HISTORY_PATH"); path != "" {
		cfg.History.Path = strings.TrimSpace(path)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.TrimSpace(level)
	}
	if d := os.Getenv("SHUTDOWN_TIMEOUT"); d != "" {
		cfg.ShutdownTimeout = parseDuration(d, cfg.ShutdownTimeout)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseRefillInterval takes whole seconds.
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseDuration takes a Go duration ("90s", "10m") or whole seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return parseRefillInterval(value, defaultValue)
}
