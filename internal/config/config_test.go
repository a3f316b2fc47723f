package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("TypingIdle converts milliseconds to duration", func(t *testing.T) {
		cfg := &Config{TypingIdleMs: 1000}
		assert.Equal(t, time.Second, cfg.TypingIdle())
	})

	t.Run("TypingTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{TypingTimeoutSeconds: 3}
		assert.Equal(t, 3*time.Second, cfg.TypingTimeout())
	})

	t.Run("StatsRefreshInterval converts seconds to duration", func(t *testing.T) {
		cfg := &Config{StatsRefreshSeconds: 30}
		assert.Equal(t, 30*time.Second, cfg.StatsRefreshInterval())
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("REDIS_URL", "redis://localhost:6379")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 1000, cfg.TypingIdleMs)
		assert.Equal(t, 3, cfg.TypingTimeoutSeconds)
		assert.Equal(t, 30, cfg.StatsRefreshSeconds)
		assert.Equal(t, 80, cfg.PreviewMaxRunes)
		assert.Equal(t, 120, cfg.RateLimitPerMin)
	})

	t.Run("overrides defaults from environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("PORT", "9090")
		t.Setenv("TYPING_IDLE_MS", "500")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, 500, cfg.TypingIdleMs)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "placeholder")
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("DATABASE_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TypingIdleMs:         1000,
			TypingTimeoutSeconds: 3,
			StatsRefreshSeconds:  30,
			PreviewMaxRunes:      80,
		}
	}

	t.Run("accepts defaults", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects non-positive preview length", func(t *testing.T) {
		cfg := valid()
		cfg.PreviewMaxRunes = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive idle window", func(t *testing.T) {
		cfg := valid()
		cfg.TypingIdleMs = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects timeout shorter than the idle window", func(t *testing.T) {
		cfg := valid()
		cfg.TypingIdleMs = 5000
		cfg.TypingTimeoutSeconds = 3
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive stats refresh", func(t *testing.T) {
		cfg := valid()
		cfg.StatsRefreshSeconds = 0
		assert.Error(t, cfg.Validate())
	})
}
