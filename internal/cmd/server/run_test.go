package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/vary/internal/config"
	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
)

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		def      string
		envValue string
		expected string
	}{
		{
			name:     "environment variable set",
			key:      "TEST_VAR",
			def:      "default",
			envValue: "env_value",
			expected: "env_value",
		},
		{
			name:     "environment variable not set",
			key:      "TEST_VAR_NOT_SET",
			def:      "default",
			envValue: "",
			expected: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				_ = os.Setenv(tt.key, tt.envValue)
			} else {
				_ = os.Unsetenv(tt.key)
			}
			t.Cleanup(func() {
				_ = os.Unsetenv(tt.key)
			})

			result := getenvDefault(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("getenvDefault(%s, %s) = %s, expected %s", tt.key, tt.def, result, tt.expected)
			}
		})
	}
}

func TestOptionsDataDirFallback(t *testing.T) {
	opts := Options{DataDir: ""}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.DataDir == "" {
		t.Error("Expected DataDir to be set after fallback")
	}
	if !filepath.IsAbs(opts.DataDir) && !filepath.HasPrefix(opts.DataDir, "./") {
		t.Errorf("Expected DataDir to be absolute or start with ./, got %s", opts.DataDir)
	}
}

// TestRunIntegration is a basic integration test that verifies Run can be called
// without immediately failing. This is a minimal test since Run starts an actual server.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	opts := Options{
		DataDir:       t.TempDir(),
		HTTPAddr:      ":0",                       // automatic port selection
		Fsync:         pebblestore.FsyncModeNever, // faster for tests
		FsyncInterval: 1 * time.Millisecond,
		Config:        cfgpkg.Default(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := Run(ctx, opts)
	if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("Expected context cancellation error, got %v", err)
	}
}
