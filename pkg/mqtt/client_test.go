package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trailmesh/navcore/pkg/dispatch"
	"github.com/trailmesh/navcore/pkg/logx"
)

func TestDisabledClientPublishIsANoOp(t *testing.T) {
	cfg := DefaultConfig() // Enabled: false
	c := NewClient(cfg, logx.NewLogger("error", "mqtt-test"))

	assert.NotPanics(t, func() {
		c.PositionUpdate(dispatch.PositionUpdate{DeviceID: "dev-A"})
	})
}

func TestRateLimiterAllowsUpToMaxPerWindow(t *testing.T) {
	rl := &RateLimiter{maxMessages: 2, windowSize: 50 * time.Millisecond}

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestIsConnectedFalseBeforeConnect(t *testing.T) {
	c := NewClient(DefaultConfig(), logx.NewLogger("error", "mqtt-test"))
	assert.False(t, c.IsConnected())
}
