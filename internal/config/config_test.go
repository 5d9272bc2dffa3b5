package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SPOTIFY_USERNAME", "alice")
	t.Setenv("SPOTIFY_PASSWORD", "hunter2")
	t.Setenv("SPOTIFY_CLIENT_ID", "client-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "client-secret")
	t.Setenv("DATA_DIR", t.TempDir())
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("POLL_TIMEOUT_SEC", "")
	t.Setenv("CACHE_LIMIT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.PollTimeout)
	assert.Equal(t, int64(2147483648), cfg.CacheLimitBytes)
	assert.Equal(t, filepath.Join(cfg.DataDir, "cache"), cfg.CacheDir)
	assert.DirExists(t, cfg.CacheDir)
	assert.DirExists(t, filepath.Join(cfg.CacheDir, "tmp"))
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("POLL_TIMEOUT_SEC", "30")
	t.Setenv("CACHE_LIMIT", "1048576")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.PollTimeout)
	assert.Equal(t, int64(1048576), cfg.CacheLimitBytes)
}

func TestLoadConfig_BadPollIntervalFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_INTERVAL_MS", "-5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestLoadConfig_MissingUsername(t *testing.T) {
	setRequired(t)
	t.Setenv("SPOTIFY_USERNAME", "")

	_, err := LoadConfig()
	require.Error(t, err)
	var cfgErr ErrConfig
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadConfig_MissingClientCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}
