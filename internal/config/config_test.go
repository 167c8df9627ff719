package config

import (
	"os"
	"testing"
	"time"

	"arena-tracker/internal/constants"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"DB_PATH", "CACHE_DIR", "RELAY_URL", "LOG_LEVEL", "MATCH_PAGE_SIZE", "AUTO_REFRESH_INTERVAL", "RIOT_API_TOKEN", "RIOT_API_BASE", "RELAY_PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "arena.db", cfg.DBPath)
	assert.Equal(t, constants.DefaultMatchPageSize, cfg.MatchPageSize)
	assert.Equal(t, constants.DefaultAutoRefreshGap, cfg.AutoRefreshInterval)
	assert.Equal(t, "https://europe.api.riotgames.com", cfg.RiotAPIBase)
	assert.Empty(t, cfg.RiotAPIToken)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MATCH_PAGE_SIZE", "1000")
	t.Setenv("AUTO_REFRESH_INTERVAL", "90s")
	t.Setenv("RELAY_URL", "http://relay.local/api/riot")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, constants.MaxMatchPageSize, cfg.MatchPageSize)
	assert.Equal(t, 90*time.Second, cfg.AutoRefreshInterval)
	assert.Equal(t, "http://relay.local/api/riot", cfg.RelayURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("MATCH_PAGE_SIZE", "many")
	_, err := Load(zerolog.Nop())
	assert.Error(t, err)

	t.Setenv("MATCH_PAGE_SIZE", "")
	t.Setenv("AUTO_REFRESH_INTERVAL", "-1m")
	_, err = Load(zerolog.Nop())
	assert.Error(t, err)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 1, ClampPageSize(0))
	assert.Equal(t, 1, ClampPageSize(-5))
	assert.Equal(t, 42, ClampPageSize(42))
	assert.Equal(t, constants.MaxMatchPageSize, ClampPageSize(201))
}

func TestLoadPrefersEnvLocal(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"RIOT_API_TOKEN", "RELAY_PORT"} {
		// restored on cleanup; unset so the env files can provide it
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	require.NoError(t, os.WriteFile(".env.local", []byte("RIOT_API_TOKEN=local-token\n"), 0o600))
	require.NoError(t, os.WriteFile(".env", []byte("RIOT_API_TOKEN=shared-token\nRELAY_PORT=4000\n"), 0o600))

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "local-token", cfg.RiotAPIToken)
	assert.Equal(t, "4000", cfg.RelayPort)
}
