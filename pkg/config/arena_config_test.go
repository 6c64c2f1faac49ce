package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AdminAPIKey = "secret"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Gateway.BaseURL)
	assert.Equal(t, 2, cfg.Arena.MaxLiveMatches)
	assert.Equal(t, 5, cfg.Arena.StartsPerMinute)
	assert.Equal(t, 600*time.Second, cfg.Arena.MatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.Arena.PairingCooldown)
	assert.Equal(t, 3, cfg.Judging.MinJudges)
	assert.Equal(t, 5, cfg.Judging.MaxJudges)
	assert.Equal(t, 90*time.Second, cfg.Judging.JudgeTimeout)
	assert.Equal(t, 0.25, cfg.Judging.DrawEpsilon)
	assert.Equal(t, 5, cfg.Gateway.MaxRetries)
	assert.Empty(t, cfg.Repository.URL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("MAX_LIVE_MATCHES", "7")
	t.Setenv("STARTS_PER_MINUTE", "12")
	t.Setenv("MATCH_TIMEOUT_SECONDS", "90")
	t.Setenv("MIN_JUDGES", "2")
	t.Setenv("MAX_JUDGES", "4")
	t.Setenv("MODEL_GATEWAY_URL", "http://localhost:9999/v1")
	t.Setenv("REPOSITORY_URL", "postgres://arena@localhost/arena")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Arena.MaxLiveMatches)
	assert.Equal(t, 12, cfg.Arena.StartsPerMinute)
	assert.Equal(t, 90*time.Second, cfg.Arena.MatchTimeout)
	assert.Equal(t, 2, cfg.Judging.MinJudges)
	assert.Equal(t, 4, cfg.Judging.MaxJudges)
	assert.Equal(t, "http://localhost:9999/v1", cfg.Gateway.BaseURL)
	assert.Equal(t, "postgres://arena@localhost/arena", cfg.Repository.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFailsFastOnInvalidValues(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("MAX_LIVE_MATCHES", "many")
	t.Setenv("DRAW_EPSILON", "tiny")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_LIVE_MATCHES")
	assert.Contains(t, err.Error(), "DRAW_EPSILON")
}

func TestLoadRequiresAdminKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_API_KEY")
}

func TestValidateJudgeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Judging.MinJudges = 5
	cfg.Judging.MaxJudges = 3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_JUDGES")
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestValidateEpsilonRange(t *testing.T) {
	cfg := validConfig()
	cfg.Arena.PairingEpsilon = 1.5

	assert.Error(t, cfg.Validate())
}

func TestUnknownVariablesIgnored(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("ARENA_UNKNOWN_SETTING", "whatever")

	_, err := Load()
	assert.NoError(t, err)
}

func TestRepositoryDSN(t *testing.T) {
	t.Run("no key passes the URL through", func(t *testing.T) {
		c := RepositoryConfig{URL: "postgres://arena:inline@db:5432/arena"}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Equal(t, "postgres://arena:inline@db:5432/arena", dsn)
	})

	t.Run("key overrides the inline password", func(t *testing.T) {
		c := RepositoryConfig{
			URL: "postgres://arena:inline@db:5432/arena?sslmode=disable",
			Key: "injected",
		}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Equal(t, "postgres://arena:injected@db:5432/arena?sslmode=disable", dsn)
	})

	t.Run("empty URL stays empty", func(t *testing.T) {
		c := RepositoryConfig{Key: "injected"}
		dsn, err := c.DSN()
		require.NoError(t, err)
		assert.Empty(t, dsn)
	})
}
