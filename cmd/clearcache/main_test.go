package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/simplixity/smiirl-feed/internal/config"
	"github.com/simplixity/smiirl-feed/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (config.Config, string) {
	t.Helper()

	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	for _, name := range []string{"instagram-data.json", "instagram-v1-data.json", "instagram-page-token-data.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(cacheDir, name), []byte("{}"), 0o644))
	}

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("INSTAGRAM_BUSINESS_ACCOUNT_ID=B1\nINSTAGRAM_USERNAME=acme\n"), 0o644))

	cfg := config.Config{
		Cache:    config.CacheConfig{Type: "file", Dir: cacheDir, LifetimeSeconds: 120, PageTokenLifetimeSeconds: 3600},
		Settings: config.SettingsConfig{File: envFile},
	}

	return cfg, cacheDir
}

func TestRun_ClearsFileCache(t *testing.T) {
	cfg, cacheDir := setup(t)

	require.NoError(t, run(context.Background(), cfg, options{}))

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name())

	persisted, err := godotenv.Read(cfg.Settings.File)
	require.NoError(t, err)
	assert.Equal(t, "B1", persisted[settings.BusinessAccountIDKey], "the business account id is kept by default")
}

func TestRun_ForgetBusinessAccount(t *testing.T) {
	cfg, _ := setup(t)

	require.NoError(t, run(context.Background(), cfg, options{forgetBusinessAccount: true}))

	persisted, err := godotenv.Read(cfg.Settings.File)
	require.NoError(t, err)
	assert.NotContains(t, persisted, settings.BusinessAccountIDKey)
	assert.Equal(t, "acme", persisted["INSTAGRAM_USERNAME"])
}

func TestRun_MissingCacheDirectory(t *testing.T) {
	cfg, _ := setup(t)
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "absent")

	assert.NoError(t, run(context.Background(), cfg, options{}))
}

func TestRun_MemoryCache(t *testing.T) {
	cfg, cacheDir := setup(t)
	cfg.Cache.Type = "memory"

	require.NoError(t, run(context.Background(), cfg, options{}))

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "files are untouched when the file cache is not in use")
}
