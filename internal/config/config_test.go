package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, "verification", cfg.Temporal.TaskQueue)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "https", cfg.QR.Scheme)
	assert.Equal(t, "nabr.app", cfg.QR.Host)
	assert.Equal(t, "9090", cfg.Metrics.Port)
	assert.Equal(t, 72*time.Hour, cfg.QRTokenTTL())
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
temporal:
  host_port: temporal.internal:7233
  task_queue: verification-staging
database:
  dsn: postgres://verify:pw@db/verify
qr:
  host: staging.nabr.app
  expiry_hours: 24
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "temporal.internal:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "verification-staging", cfg.Temporal.TaskQueue)
	assert.Equal(t, "postgres://verify:pw@db/verify", cfg.Database.DSN)
	assert.Equal(t, "staging.nabr.app", cfg.QR.Host)
	assert.Equal(t, 24*time.Hour, cfg.QRTokenTTL())

	// Unset sections still get defaults.
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: postgres://file-dsn
redis:
  addr: file-redis:6379
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env-dsn")
	t.Setenv("REDIS_ADDR", "env-redis:6379")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-dsn", cfg.Database.DSN)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
}
