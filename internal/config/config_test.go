package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFallback(t *testing.T) {
	t.Setenv("TRANSIT_TEST_KEY", "")
	assert.Equal(t, "fallback", Get("TRANSIT_TEST_KEY", "fallback"))

	t.Setenv("TRANSIT_TEST_KEY", "  value ")
	assert.Equal(t, "value", Get("TRANSIT_TEST_KEY", "fallback"))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 256, cfg.OutboxSize)
	assert.Equal(t, 25*time.Second, cfg.PingInterval)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "port: \"9090\"\nstore_driver: memory\noutbox_size: 32\nping_interval: 5s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("OUTBOX_SIZE", "64")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 64, cfg.OutboxSize, "env overrides file")
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreDriver")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("PING_INTERVAL", "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PING_INTERVAL")
}

func TestPostgresRequiresURL(t *testing.T) {
	cfg := Default()
	cfg.StoreDriver = DriverPostgres
	cfg.DatabaseURL = ""
	require.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/transit"
	require.NoError(t, cfg.Validate())
}
