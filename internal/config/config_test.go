package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", c.API.Listen)
	assert.Equal(t, 20, c.Hub.TopN)
	assert.Equal(t, 75*time.Millisecond, c.Hub.Debounce)
	assert.Equal(t, 24*time.Hour, c.Hub.TokenTTL)
	assert.Equal(t, "leaderboard_sync", c.Sync.Channel)
	assert.Empty(t, c.DB.DSN)
	assert.Empty(t, c.Sync.URL)
	assert.True(t, c.Hub.DemoSeed)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEADERBOARD_HUB_TOP_N", "5")
	t.Setenv("LEADERBOARD_HUB_DEBOUNCE_MS", "200")
	t.Setenv("LEADERBOARD_HUB_INSTANCE_ID", "node-a")
	t.Setenv("LEADERBOARD_SYNC_URL", "nats://localhost:4222")
	t.Setenv("LEADERBOARD_DB_DSN", "postgres://u:p@localhost/lb")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, c.Hub.TopN)
	assert.Equal(t, 200*time.Millisecond, c.Hub.Debounce)
	assert.Equal(t, "node-a", c.Hub.InstanceID)
	assert.Equal(t, "nats://localhost:4222", c.Sync.URL)
	assert.Equal(t, "postgres://u:p@localhost/lb", c.DB.DSN)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "leaderboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  listen: ":9090"
hub:
  top_n: 10
  token_ttl: 30m
sync:
  url: db
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.API.Listen)
	assert.Equal(t, 10, c.Hub.TopN)
	assert.Equal(t, 30*time.Minute, c.Hub.TokenTTL)
	assert.True(t, c.SyncUsesDB())
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	t.Run("non-positive top_n", func(t *testing.T) {
		t.Setenv("LEADERBOARD_HUB_TOP_N", "0")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoad_ZeroTokenTTLDisablesExpiry(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEADERBOARD_HUB_TOKEN_TTL", "0s")

	c, err := Load("")
	require.NoError(t, err)
	assert.Negative(t, c.Hub.TokenTTL)
}
