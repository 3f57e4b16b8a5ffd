package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
    t.Helper()
    for k, v := range map[string]string{
        "APP_ENV": "dev", "APP_PORT": "8080",
        "DB_USER": "root", "DB_HOST": "localhost", "DB_PORT": "3306", "DB_NAME": "esummit",
        "JWT_SECRET": "secret", "ACCESS_TOKEN_TTL_MIN": "15", "REFRESH_TOKEN_TTL_DAYS": "7",
    } {
        t.Setenv(k, v)
    }
}

func TestLoadDefaults(t *testing.T) {
    setRequired(t)
    t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

    cfg, err := Load()
    require.NoError(t, err)
    require.Equal(t, "INR", cfg.Currency)
    require.Equal(t, 48*time.Hour, cfg.ClaimTTL)
    require.True(t, cfg.ClaimAutoApprove)
    require.False(t, cfg.KonfHub.AllowUnsigned)
    require.Equal(t, 15*time.Second, cfg.KonfHub.RequestTimeout)
    require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
    require.Equal(t, 15, cfg.AccessTTLMin)
}

func TestLoadReportsEveryMissingVar(t *testing.T) {
    setRequired(t)
    t.Setenv("DB_HOST", "")
    t.Setenv("ACCESS_TOKEN_TTL_MIN", "soon")

    _, err := Load()
    require.Error(t, err)
    require.Contains(t, err.Error(), "DB_HOST")
    require.Contains(t, err.Error(), "ACCESS_TOKEN_TTL_MIN")
}

func TestLoadRefusesUnsignedWebhooksInProd(t *testing.T) {
    setRequired(t)
    t.Setenv("APP_ENV", "prod")
    t.Setenv("KONFHUB_ALLOW_UNSIGNED_WEBHOOKS", "true")

    _, err := Load()
    require.ErrorContains(t, err, "KONFHUB_ALLOW_UNSIGNED_WEBHOOKS")
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    rl := LoadRateLimitConfig()
    require.Equal(t, 1, rl.Capacity)
    require.Equal(t, 10*time.Second, rl.TTL)
}

func TestLoadCacheConfigMethods(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head")
    cc := LoadCacheConfig()
    require.True(t, cc.Methods["GET"])
    require.True(t, cc.Methods["HEAD"])
    require.False(t, cc.Methods["POST"])
}
