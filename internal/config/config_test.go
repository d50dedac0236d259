package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_SetsBaselineValues(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Auth.Required)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "clips", cfg.Blob.Container)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestApplyEnvOverrides_StringAndBoolAndDuration(t *testing.T) {
	t.Setenv("PINGWATCH_POSTGRES_DSN", "postgres://example/db")
	t.Setenv("PINGWATCH_AUTH_REQUIRED", "false")
	t.Setenv("PINGWATCH_AUTH_TOKEN_TTL_SECONDS", "3600")
	t.Setenv("PINGWATCH_CORS_TUNNEL_DOMAINS", "tunnel-a.dev, tunnel-b.dev ,")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://example/db", cfg.Database.PostgresDSN)
	assert.False(t, cfg.Auth.Required)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"tunnel-a.dev", "tunnel-b.dev"}, cfg.CORSTunnelDomains)
}

func TestClampAuthTokenTTL_ClampsToBounds(t *testing.T) {
	cfg := Default()
	cfg.Auth.TokenTTL = time.Second
	clampAuthTokenTTL(cfg)
	assert.Equal(t, 5*time.Minute, cfg.Auth.TokenTTL)

	cfg.Auth.TokenTTL = 365 * 24 * time.Hour
	clampAuthTokenTTL(cfg)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.TokenTTL)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "True", "TRUE", "yes", "on", "ON"} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"0", "false", "no", "off", ""} {
		assert.False(t, isTruthy(v), v)
	}
}
