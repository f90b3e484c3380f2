package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, BackendFile, cfg.StorageBackend)
	require.Equal(t, 5, cfg.RateLimitMaxAttempts)
	require.Equal(t, 15, cfg.RateLimitWindowMinutes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9090, "dataPath": "/var/lib/siteapi"}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "/var/lib/siteapi", cfg.DataPath)
	// Unspecified fields keep their defaults
	require.Equal(t, 5, cfg.RateLimitMaxAttempts)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "3")
	t.Setenv("RATE_LIMIT_WINDOW_MINUTES", "30")
	t.Setenv("PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RateLimitMaxAttempts)
	require.Equal(t, 30, cfg.RateLimitWindowMinutes)
	require.Equal(t, 7070, cfg.Port)
}

func TestEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "banana")
	t.Setenv("RATE_LIMIT_WINDOW_MINUTES", "-5")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.RateLimitMaxAttempts)
	require.Equal(t, 15, cfg.RateLimitWindowMinutes)
}

func TestBackendValidation(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "gcs")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("GCS_BUCKET", "my-bucket")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, BackendGCS, cfg.StorageBackend)

	t.Setenv("STORAGE_BACKEND", "floppy")
	_, err = Load("")
	require.Error(t, err)
}
