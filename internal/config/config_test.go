package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  name: canvas-grade-sync
  env: test
database:
  host: localhost
  port: 3306
  user: root
  name: grades
redis:
  host: localhost
  port: 6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "canvas-grade-sync", cfg.App.Name)
	assert.Equal(t, 100, cfg.Canvas.PerPage)
	assert.Equal(t, 5, cfg.Canvas.PageWorkers)
	assert.Equal(t, 5, cfg.Canvas.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Canvas.RetryDelay)
	assert.Equal(t, 10, cfg.Sync.ChunkSize)
	assert.Equal(t, 24*time.Hour, cfg.Sync.CheckpointTTL)
	assert.Equal(t, time.Hour, cfg.Sync.ProgressTTL)
	assert.Equal(t, "America/Los_Angeles", cfg.Sync.LocalTimezone)
	assert.Equal(t, 2, cfg.Workers.Sync.Count)
	assert.Equal(t, "sync_jobs", cfg.Redis.SyncQueue)
	assert.Equal(t, ":dlq", cfg.Redis.DLQSuffix)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.CronSpec)
}

func TestLoad_ExplicitValuesKept(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
canvas:
  per_page: 50
  retry_attempts: 2
sync:
  chunk_size: 25
  local_timezone: UTC
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Canvas.PerPage)
	assert.Equal(t, 2, cfg.Canvas.RetryAttempts)
	assert.Equal(t, 25, cfg.Sync.ChunkSize)
	assert.Equal(t, "UTC", cfg.Sync.LocalTimezone)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:      "db.internal",
			Port:      3306,
			User:      "app",
			Password:  "secret",
			Name:      "grades",
			Charset:   "utf8mb4",
			ParseTime: true,
			Loc:       "UTC",
		},
	}

	assert.Equal(t,
		"app:secret@tcp(db.internal:3306)/grades?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DatabaseDSN())
}

func TestRedisAddr(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Host: "cache.internal", Port: 6380}}
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}
