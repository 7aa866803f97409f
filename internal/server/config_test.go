package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eos/lss/internal/ratelimit"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 10*time.Minute, cfg.Game.Duration)
	assert.Equal(t, 2*time.Hour, cfg.Game.SessionTTL)
	assert.Equal(t, ratelimit.Rule{Max: 5, Window: 5 * time.Second}, cfg.ActionLimits.Rules["coin-action"])
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lss.yaml")
	data := `
port: "9090"
allowedOrigins:
  - https://game.example
maxMessageSize: 2048
game:
  duration: 90s
actionLimits:
  rules:
    coin-action:
      max: 2
      window: 1s
history:
  path: /tmp/lss.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://game.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, 90*time.Second, cfg.Game.Duration)
	assert.Equal(t, 2*time.Hour, cfg.Game.SessionTTL, "unset keys keep defaults")
	assert.Equal(t, ratelimit.Rule{Max: 2, Window: time.Second}, cfg.ActionLimits.Rules["coin-action"])
	assert.Equal(t, "/tmp/lss.db", cfg.History.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [1, 2"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lss.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \":7000\"\n"), 0o600))

	t.Setenv("SERVER_PORT", ":7001")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("GAME_DURATION", "5m")
	t.Setenv("SESSION_TTL", "600")
	t.Setenv("HISTORY_PATH", "history.db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 7, RefillInterval: 3 * time.Second}, cfg.RateLimit)
	assert.Equal(t, 5*time.Minute, cfg.Game.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Game.SessionTTL)
	assert.Equal(t, "history.db", cfg.History.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestMalformedEnvIsIgnored(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "big")
	t.Setenv("RATE_LIMIT_BURST", "-1")
	t.Setenv("GAME_DURATION", "soon")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	def := NewConfig()
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.RateLimit.Burst, cfg.RateLimit.Burst)
	assert.Equal(t, def.Game.Duration, cfg.Game.Duration)
}

func TestSanitizeFillsZeroValues(t *testing.T) {
	cfg := Config{}.Sanitize()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, ratelimit.DefaultRule, cfg.ActionLimits.Default)
	assert.NotEmpty(t, cfg.ActionLimits.Rules)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.AllowedOrigins)
}
