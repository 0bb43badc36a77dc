package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 1000, cfg.CacheMaxSize)
	assert.Equal(t, 3*time.Second, cfg.CacheMaxAge)
	assert.Equal(t, 100, cfg.PrecomputeCap)
	assert.Equal(t, 50, cfg.PredictQueueCap)
	assert.Equal(t, 50*time.Millisecond, cfg.TimeoutCritical)
	assert.Equal(t, 100*time.Millisecond, cfg.TimeoutHigh)
	assert.Equal(t, 200*time.Millisecond, cfg.TimeoutNormal)
	assert.Equal(t, 500*time.Millisecond, cfg.TimeoutLow)
	assert.Empty(t, cfg.HistoryPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SENTE_MAX_WORKERS", "8")
	t.Setenv("SENTE_CACHE_MAX_AGE", "5s")
	t.Setenv("SENTE_TIMEOUT_NORMAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.CacheMaxAge)
	assert.Equal(t, 250*time.Millisecond, cfg.TimeoutNormal)
}

func TestLoad_InvalidValueFallsBack(t *testing.T) {
	t.Setenv("SENTE_MAX_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxWorkers)
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	bad := base
	bad.MaxWorkers = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.CacheMaxSize = -1
	assert.Error(t, bad.Validate())

	bad = base
	bad.TimeoutCritical = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.PredictQueueCap = 0
	assert.Error(t, bad.Validate())
}
