package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
providers:
  alphavantage:
    api_key: file-key
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, "file-key", c.Providers.AlphaVantage.APIKey)
	assert.Equal(t, 5, c.Providers.AlphaVantage.RateLimitPerMinute)
	assert.Equal(t, 2, c.Gateway.Attempts)
	assert.Equal(t, 500*time.Millisecond, c.Gateway.Backoff())
	assert.Equal(t, 30*time.Minute, c.Gateway.HistoricalTTL())
	assert.Equal(t, 15*time.Second, c.Gateway.LiveTTL())
	assert.Equal(t, 5, c.Verification.BatchSize)
	assert.Equal(t, time.Second, c.Verification.GroupDelay())
}

func TestLoad_EnvKeyWinsOverFile(t *testing.T) {
	t.Setenv("ALPHAVANTAGE_API_KEY", "env-key")
	t.Setenv("POLYGON_API_KEY", "env-poly")

	path := writeConfig(t, `
providers:
  alphavantage:
    api_key: file-key
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.Providers.AlphaVantage.APIKey)
	assert.Equal(t, "env-poly", c.Providers.Polygon.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Empty(t, c.Database.Path, "no file path means the in-memory store")
}
