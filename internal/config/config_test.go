package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", s.Server.Host)
	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, "filesystem", s.Storage.Kind)
	assert.Equal(t, "filesystem", s.Cache.Backend)
	assert.Equal(t, time.Hour, s.Cache.TTL)
	assert.Greater(t, s.Processor.Concurrency, 0)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("FREQMODA_PORT", "9090")
	t.Setenv("FREQMODA_STORAGE_KIND", "s3")
	t.Setenv("FREQMODA_CACHE_TTL", "5m")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, "s3", s.Storage.Kind)
	assert.Equal(t, 5*time.Minute, s.Cache.TTL)
}

func TestLoad_InvalidEnvIntFallsBackToDefault(t *testing.T) {
	t.Setenv("FREQMODA_PORT", "not-a-number")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, s.Server.Port)
}

func TestLoad_ConcurrencyDefaultsToNumCPUWhenUnset(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)
	assert.Greater(t, s.Processor.Concurrency, 0)
}
