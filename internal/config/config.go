package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func mustAtoi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func LoadConfig() (*Config, error) {
	dataDir := getenv("DATA_DIR", "./data")
	cacheDir := filepath.Join(dataDir, "cache")

	// CACHE_LIMIT is a plain byte count.
	cacheLimit := getenv("CACHE_LIMIT", "2147483648") // default 2GB
	pollMS, _ := strconv.Atoi(getenv("POLL_INTERVAL_MS", "100"))
	if pollMS <= 0 {
		pollMS = 100
	}
	pollTimeoutSec, _ := strconv.Atoi(getenv("POLL_TIMEOUT_SEC", "10"))
	if pollTimeoutSec < 0 {
		pollTimeoutSec = 10
	}

	cfg := &Config{
		Username:            os.Getenv("SPOTIFY_USERNAME"),
		Password:            os.Getenv("SPOTIFY_PASSWORD"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		DataDir:             dataDir,
		CacheDir:            cacheDir,
		CacheLimitBytes:     mustAtoi64(cacheLimit),
		PollInterval:        time.Duration(pollMS) * time.Millisecond,
		PollTimeout:         time.Duration(pollTimeoutSec) * time.Second,
	}

	if cfg.Username == "" {
		return nil, ErrConfig("SPOTIFY_USERNAME required")
	}
	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		return nil, ErrConfig("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET required")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(cfg.CacheDir, 0o755)
	_ = os.MkdirAll(filepath.Join(cfg.CacheDir, "tmp"), 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
