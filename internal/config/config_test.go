package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EVIDENT_ENV", "CONTENT_STORE_ROOT", "METADATA_URL", "CACHE_BACKEND",
		"CACHE_URL", "WORKER_POOL_SIZE", "QUEUE_CAPACITY", "MAX_UPLOAD_BYTES",
		"TRUST_PROXY", "EVENTS_BACKEND", "EVENTS_URL", "JWT_SECRET",
		"EVIDENT_CONFIG_FILE",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Env)
	assert.Equal(t, CacheMemory, cfg.CacheBackend)
	assert.Equal(t, "memory", cfg.EventsBackend)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, int64(5), cfg.TierLimits["free"].UploadsPerMonth)
}

func TestValidate_ProductionRequiresMetadataURL(t *testing.T) {
	cfg := defaults()
	cfg.Env = Production
	cfg.JWTSecret = "a-sufficiently-long-jwt-secret-value-here"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "metadata_url")
}

func TestValidate_ProductionRejectsShortJWTSecret(t *testing.T) {
	cfg := defaults()
	cfg.Env = Production
	cfg.MetadataURL = "postgres://localhost/evident"
	cfg.JWTSecret = "too-short"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidate_ProductionRequiresCacheURLWhenRemote(t *testing.T) {
	cfg := defaults()
	cfg.Env = Production
	cfg.MetadataURL = "postgres://localhost/evident"
	cfg.JWTSecret = "a-sufficiently-long-jwt-secret-value-here"
	cfg.CacheBackend = CacheRemote

	err := cfg.Validate()
	assert.ErrorContains(t, err, "cache_url")
}

func TestValidate_ProductionRequiresEventsURLWhenNATS(t *testing.T) {
	cfg := defaults()
	cfg.Env = Production
	cfg.MetadataURL = "postgres://localhost/evident"
	cfg.JWTSecret = "a-sufficiently-long-jwt-secret-value-here"
	cfg.EventsBackend = "nats"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "events_url")
}

func TestApplyOverrideFile_RejectsUnknownKey(t *testing.T) {
	clearEnv(t)

	f, err := os.CreateTemp(t.TempDir(), "override-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("made_up_key: true\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	os.Setenv("EVIDENT_CONFIG_FILE", f.Name())
	defer os.Unsetenv("EVIDENT_CONFIG_FILE")

	_, err = Load()
	assert.ErrorContains(t, err, "unknown configuration key")
}

func TestLimitFor_FallsBackToFree(t *testing.T) {
	cfg := defaults()
	limit := cfg.LimitFor("nonexistent-tier")
	assert.Equal(t, cfg.TierLimits["free"], limit)
}
