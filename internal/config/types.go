package config

import "time"

type Config struct {
	Username            string
	Password            string
	SpotifyClientID     string
	SpotifyClientSecret string
	DataDir             string
	CacheDir            string
	CacheLimitBytes     int64
	PollInterval        time.Duration
	PollTimeout         time.Duration
}
