package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears viper's global state between tests.
func resetViper() {
	viper.Reset()
}

func unsetEnvKeys(keys ...string) {
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
	return path
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()
	unsetEnvKeys(
		"SHEETSYNC_DATABASE_HOST", "SHEETSYNC_DATABASE_PORT", "SHEETSYNC_DATABASE_DATABASE",
		"SHEETSYNC_SYNC_TICK_INTERVAL", "SHEETSYNC_APP_ENVIRONMENT",
	)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sheetsync", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "sheetsync", cfg.Database.Database)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.False(t, cfg.UsesRedisIdempotency())
	assert.Equal(t, 1000, cfg.Sync.ChangeLogBatch)
	assert.Equal(t, 3, cfg.Sync.RetryMaxAttempts)
}

func TestLoad_File(t *testing.T) {
	resetViper()
	unsetEnvKeys("SHEETSYNC_DATABASE_HOST", "SHEETSYNC_APP_ENVIRONMENT")

	yaml := `
app:
  environment: "production"
database:
  host: "db.local"
  port: 5433
  database: "sheetsync_prod"
sync:
  tick_interval: "30s"
  retry_max_attempts: 5
`
	path := writeTempYAML(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "sheetsync_prod", cfg.Database.Database)
	assert.Equal(t, 30, int(cfg.Sync.TickInterval.Seconds()))
	assert.Equal(t, 5, cfg.Sync.RetryMaxAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	resetViper()

	yaml := `
database:
  host: "file-db.local"
app:
  environment: "development"
`
	path := writeTempYAML(t, yaml)

	require.NoError(t, os.Setenv("SHEETSYNC_DATABASE_HOST", "env-db.local"))
	require.NoError(t, os.Setenv("SHEETSYNC_APP_ENVIRONMENT", "production"))
	t.Cleanup(func() {
		unsetEnvKeys("SHEETSYNC_DATABASE_HOST", "SHEETSYNC_APP_ENVIRONMENT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-db.local", cfg.Database.Host, "env should override file")
	assert.Equal(t, "production", cfg.App.Environment, "env should override file")
}

func TestLoad_ValidationError(t *testing.T) {
	resetViper()
	unsetEnvKeys("SHEETSYNC_DATABASE_HOST")

	yaml := `
database:
  host: ""
`
	path := writeTempYAML(t, yaml)

	cfg, err := Load(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
}
