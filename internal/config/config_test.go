package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, uint16(8085), cfg.HttpServerPort)
	assert.Equal(t, 0, cfg.RetentionHours)
	assert.Equal(t, "sqlite", cfg.HistoryBackend)
	assert.Equal(t, "konigsbrunn", cfg.DefaultCity)
	assert.Equal(t, 50, cfg.BackfillLimit)
	assert.Equal(t, 4*time.Second, cfg.TypingTTL)
	assert.Empty(t, cfg.CorsOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("RETENTION_HOURS", "24")
	t.Setenv("HISTORY_BACKEND", "redis")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.RetentionHours)
	assert.Equal(t, 24*time.Hour, cfg.Retention())
	assert.Equal(t, "redis", cfg.HistoryBackend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CorsOrigins)
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "cassandra")

	_, err := LoadConfig()
	assert.Error(t, err)
}

// zero durations would stall or crash the tickers built from them
func TestLoadConfig_RejectsZeroDurations(t *testing.T) {
	for _, key := range []string{"TYPING_TTL", "PRUNE_INTERVAL", "IDLE_TIMEOUT"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "0s")

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestRetention_Zero(t *testing.T) {
	cfg := &Config{RetentionHours: 0}
	assert.Equal(t, time.Duration(0), cfg.Retention())
}
