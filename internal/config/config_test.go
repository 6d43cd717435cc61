package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "wt2_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("SERVER_ENVIRONMENT", "Production")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("KEYCLOAK_URL", "http://kc:8080/")
	t.Setenv("KEYCLOAK_REALM", "catalog")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "wt2_test", cfg.MongoDB.Database)
	require.Equal(t, "titles", cfg.MongoDB.Collection)
	require.Equal(t, 10*time.Second, cfg.MongoDB.Timeout)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.True(t, cfg.IsProduction())
	require.Equal(t, "0.0.0.0:5001", cfg.Address())
	require.Equal(t, 2.5, cfg.RateLimit.RPS)
	require.Equal(t, 20, cfg.RateLimit.Burst)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, "http://kc:8080/realms/catalog", cfg.Keycloak.Issuer())
}

func TestLoadConfig_MemoryFallback(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("SERVER_ENVIRONMENT", "development")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("KEYCLOAK_URL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Empty(t, cfg.MongoDB.URI)
	require.False(t, cfg.IsProduction())
	require.Empty(t, cfg.Redis.Addr())
	require.Empty(t, cfg.Keycloak.Issuer())
}
