package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partner-sync-go/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New(io.Discard, slog.LevelError, "text")
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(testLogger(), "")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 100, cfg.Sync.MaxBatchOperations)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "partner-sync.toml", `
env = "production"

[db]
driver = "sqlite"
sqlite_path = "/var/lib/partner-sync/sync.db"

[sync]
max_attempts = 5
overdue_after = "10m"
merge_strategy = "none"
`)
	t.Setenv("SYNC_MAX_ATTEMPTS", "7")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(testLogger(), path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, "/var/lib/partner-sync/sync.db", cfg.DB.GetDSN())
	assert.Equal(t, 7, cfg.Sync.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Sync.OverdueAfter)
	assert.Equal(t, MergeStrategyNone, cfg.Sync.MergeStrategy)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 100, cfg.Sync.MaxBatchOperations, "unset keys keep defaults")
}

func TestLoadDotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	writeFile(t, dir, ".env", "HTTP_PORT=9090\nSYNC_STREAM_BUFFER=4 # small\n")
	t.Setenv("SYNC_STREAM_BUFFER", "32")
	t.Cleanup(func() { os.Unsetenv("HTTP_PORT") })

	cfg, err := Load(testLogger(), "")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, 32, cfg.Sync.StreamBuffer)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "bad.toml", "[sync]\nmax_atempts = 2\n")

	_, err := Load(testLogger(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.max_atempts")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.DB.Driver = "mysql"
	cfg.Sync.MaxBatchOperations = 0
	cfg.Sync.DefaultPullLimit = 2000
	cfg.Sync.MergeStrategy = "deep"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"db.driver", "sync.max_batch_operations", "sync.default_pull_limit", "sync.merge_strategy"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestGetDSN(t *testing.T) {
	cfg := Default().DB
	assert.Equal(t, "host=localhost user=postgres password=postgres dbname=partner_sync port=5432 sslmode=disable TimeZone=UTC", cfg.GetDSN())

	cfg.DSN = "postgres://u:p@db/partner_sync"
	assert.Equal(t, "postgres://u:p@db/partner_sync", cfg.GetDSN())
}
