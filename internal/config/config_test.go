package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "https://opendart.fss.or.kr/api", cfg.DART.BaseURL)
	assert.Equal(t, 30, cfg.DART.TimeoutSecs)
	assert.InDelta(t, 5, cfg.DART.RequestsPerSec, 0.001)
	assert.Equal(t, "http://data.krx.co.kr", cfg.KRX.BaseURL)
	assert.Equal(t, 12, cfg.KRX.CacheTTLHours)
	assert.Equal(t, "https://apis.data.go.kr", cfg.PublicData.BaseURL)
	assert.Equal(t, 4, cfg.Collect.Workers)
	assert.Equal(t, 8, cfg.Collect.Years)
	assert.Equal(t, 8, cfg.Collect.Quarters)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: postgres://localhost/agentvi
dart:
  api_key: file-key
  requests_per_sec: 2
log:
  level: debug
  format: console
collect:
  workers: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/agentvi", cfg.Store.DatabaseURL)
	assert.Equal(t, "file-key", cfg.DART.APIKey)
	assert.InDelta(t, 2, cfg.DART.RequestsPerSec, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Collect.Workers)
	assert.Equal(t, 8, cfg.Collect.Years, "unset keys keep defaults")
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("AGENTVI_DART_API_KEY", "env-key")
	t.Setenv("AGENTVI_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.DART.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
