package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chest/internal/sequencer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inDir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	inDir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "chest.db", cfg.Storage.SQLitePath)
	assert.Equal(t, time.Hour, cfg.Session.IdleTimeout)
	assert.Equal(t, "@every 10m", cfg.Session.CleanupSchedule)
	assert.Equal(t, sequencer.DefaultTimings(), cfg.Timings())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	doc := `
server:
  port: "9090"
storage:
  driver: memory
reveal:
  shakingms: 100
  shortcutpausems: 0
session:
  idletimeout: 15m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0o644))
	inDir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.StorageOptions().Driver)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTimeout)

	timings := cfg.Timings()
	assert.Equal(t, 100*time.Millisecond, timings.Shaking)
	assert.Equal(t, 460*time.Millisecond, timings.Revealing)
	assert.Zero(t, timings.ShortcutPause)
}

func TestLoadFromEnv(t *testing.T) {
	inDir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("STORAGE_REDISADDR", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	opts := cfg.StorageOptions()
	assert.Equal(t, "redis", opts.Driver)
	assert.Equal(t, "cache:6379", opts.RedisAddr)
}
