package config_test

import (
	"os"
	"testing"

	"github.com/alfreddev/fusegate/config"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "development", cfg.Env)
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, 32, cfg.PoolMaxConnections)
	require.Equal(t, uint64(5), cfg.FuseThreshold)
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("ENV", "production")
	os.Setenv("FUSE_THRESHOLD", "9")
	os.Setenv("POOL_MAX_CONNECTIONS", "4")
	defer func() {
		os.Unsetenv("ENV")
		os.Unsetenv("FUSE_THRESHOLD")
		os.Unsetenv("POOL_MAX_CONNECTIONS")
	}()

	cfg := config.Load()
	require.True(t, cfg.IsProduction())
	require.Equal(t, uint64(9), cfg.FuseThreshold)
	require.Equal(t, 4, cfg.PoolMaxConnections)
}
