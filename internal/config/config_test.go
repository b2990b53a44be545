package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.True(t, cfg.Development())
	assert.EqualValues(t, 20, cfg.DBMaxConns)
	assert.Equal(t, time.Minute, cfg.TopUpInterval)
	assert.Equal(t, 100, cfg.TopUpBatchSize)
	assert.False(t, cfg.TopUpEnabled)
	assert.Equal(t, 30*time.Second, cfg.BalanceCacheTTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://ledger@db/ledger")
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOPUP_ENABLED", "true")
	t.Setenv("TOPUP_INTERVAL", "5m")
	t.Setenv("TOPUP_BATCH_SIZE", "25")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Development())
	assert.True(t, cfg.TopUpEnabled)
	assert.Equal(t, 5*time.Minute, cfg.TopUpInterval)
	assert.Equal(t, 25, cfg.TopUpBatchSize)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
}

func TestLoad_RequiresDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
