package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.ClientTimeout)
	assert.Equal(t, 3, cfg.DefaultCapacity)
	assert.False(t, cfg.StrictJoin)
	assert.True(t, cfg.StrictCreate)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.EqualValues(t, 32768, cfg.ReadLimit)
}
