package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Storage backend names recognized in Config.StorageBackend.
const (
	BackendPebble    = "pebble"
	BackendEphemeral = "ephemeral"
	BackendClient    = "client"
	BackendRemote    = "remote"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Enabled is the kill switch. When false the engine returns no
	// assignment for every experiment without evaluating anything.
	Enabled bool `json:"enabled"`
	// StorageBackend selects the sticky-assignment store:
	// pebble|ephemeral|client|remote. Empty means pebble (server-side).
	StorageBackend string `json:"storageBackend"`
	// CookiePrefix namespaces keys written by the client-held store.
	CookiePrefix string `json:"cookiePrefix"`
	// SessionTimeoutHours is the sticky-assignment TTL (default 720 = 30 days).
	SessionTimeoutHours int `json:"sessionTimeoutHours"`
	// StoreTimeoutMs bounds individual store operations on the assign path.
	StoreTimeoutMs int `json:"storeTimeoutMs"`
	// RemoteURL is the base URL of a shared vary server, required when
	// StorageBackend is "remote".
	RemoteURL string `json:"remoteUrl"`
	// ExperimentsFile is a JSON file of experiment definitions loaded into
	// the catalog at startup. Optional.
	ExperimentsFile string `json:"experimentsFile"`
	// EventQueueSize bounds the recorder's async submission queue.
	EventQueueSize int `json:"eventQueueSize"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Enabled:             true,
		StorageBackend:      BackendPebble,
		CookiePrefix:        "vary_",
		SessionTimeoutHours: 720,
		StoreTimeoutMs:      50,
		EventQueueSize:      1024,
	}
}

// SessionTimeout returns the sticky-assignment TTL as a duration.
func (c Config) SessionTimeout() time.Duration {
	if c.SessionTimeoutHours <= 0 {
		return 720 * time.Hour
	}
	return time.Duration(c.SessionTimeoutHours) * time.Hour
}

// StoreTimeout returns the per-operation store deadline.
func (c Config) StoreTimeout() time.Duration {
	if c.StoreTimeoutMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.StoreTimeoutMs) * time.Millisecond
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case "", BackendPebble, BackendEphemeral, BackendClient, BackendRemote:
	default:
		return fmt.Errorf("config: unknown storageBackend %q", c.StorageBackend)
	}
	if c.StorageBackend == BackendRemote && c.RemoteURL == "" {
		return fmt.Errorf("config: storageBackend=remote requires remoteUrl")
	}
	return nil
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
