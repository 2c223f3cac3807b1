package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "dashguard", cfg.App.Name)
	assert.Equal(t, 8090, cfg.Server.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "mock", cfg.Feed.Loader)
	assert.Equal(t, uint64(42), cfg.Feed.Seed)
	assert.Equal(t, 25, cfg.Feed.IPCount)
	assert.Equal(t, 5, cfg.Dashboard.SummaryTopCountries)
	assert.Equal(t, 10, cfg.Dashboard.DetailTopCountries)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.StatsCacheTTL)
	assert.Equal(t, "standard", cfg.Map.DefaultBasemap)
	assert.Equal(t, 18, cfg.Map.MaxZoom)
	assert.Equal(t, "dashguard_auth", cfg.Session.Cookie)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  http_port: 9999
feed:
  loader: file
  path: /var/lib/dashguard/feed.json
  ip_count: 3
dashboard:
  stats_cache_ttl: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("DASHGUARD_REDIS_HOST", "redis.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "file", cfg.Feed.Loader)
	assert.Equal(t, "/var/lib/dashguard/feed.json", cfg.Feed.Path)
	assert.Equal(t, 3, cfg.Feed.IPCount)
	assert.Equal(t, 15, cfg.Feed.DomainCount)
	assert.Equal(t, 30*time.Second, cfg.Dashboard.StatsCacheTTL)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
