package config

import (
	"os"
	"strconv"
)

// FromEnv overlays VARY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("VARY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}
	if v := os.Getenv("VARY_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("VARY_COOKIE_PREFIX"); v != "" {
		cfg.CookiePrefix = v
	}
	if v := os.Getenv("VARY_SESSION_TIMEOUT_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTimeoutHours = n
		}
	}
	if v := os.Getenv("VARY_STORE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StoreTimeoutMs = n
		}
	}
	if v := os.Getenv("VARY_REMOTE_URL"); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv("VARY_EXPERIMENTS_FILE"); v != "" {
		cfg.ExperimentsFile = v
	}
	if v := os.Getenv("VARY_EVENT_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventQueueSize = n
		}
	}
}
