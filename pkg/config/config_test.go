package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecTable(t *testing.T) {
	c := Default()

	assert.Equal(t, 3000, c.Port)
	assert.Equal(t, 2.0, c.CollisionDistanceMeters)
	assert.Equal(t, 5.0, c.WarningDistanceMeters)
	assert.Equal(t, 15.0, c.MaxSafeSpeedMps)
	assert.Equal(t, 0.6, c.SensorConfidenceThreshold)
	assert.Equal(t, 5, c.SmoothingWindow)
	assert.Equal(t, 2.0, c.RSSIPathLossExponent)
	assert.Equal(t, -40.0, c.RSSIMeasuredAt1m)
	assert.Equal(t, 3, c.MinBaseStations)
	assert.Equal(t, 30*time.Second, c.DeviceTTL)
	assert.Equal(t, 3*time.Second, c.DedupWindow)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	require.NoError(t, os.Setenv("SAFETY_MAX_SPEED_MS", "20"))
	require.NoError(t, os.Setenv("DEVICE_TTL_MS", "60000"))
	require.NoError(t, os.Setenv("FUSION_SMOOTHING_WINDOW", "bogus"))
	defer func() {
		os.Unsetenv("SAFETY_MAX_SPEED_MS")
		os.Unsetenv("DEVICE_TTL_MS")
		os.Unsetenv("FUSION_SMOOTHING_WINDOW")
	}()

	c := Load()

	assert.Equal(t, 20.0, c.MaxSafeSpeedMps)
	assert.Equal(t, 60*time.Second, c.DeviceTTL)
	// Invalid override falls back to the default rather than zeroing out.
	assert.Equal(t, 5, c.SmoothingWindow)
}
