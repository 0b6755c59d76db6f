package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "", cfg.Database.DSN)
	require.Equal(t, "noreply@nexushub.dev", cfg.SMTP.From)
	require.Equal(t, "NexusHub", cfg.SMTP.FromName)
	require.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\nlogging:\n  level: debug\n"), 0o600))

	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	// The file wins over the environment.
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep their env-derived values.
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadBadFile(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}
