package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmoothingBufferLengthNeverExceedsWindow(t *testing.T) {
	sb := NewSmoothingBuffer(3)

	for i := 0; i < 10; i++ {
		sb.Push(Vec3{X: float64(i)}, Vec3{}, Vec3{})
	}

	assert.Equal(t, 3, sb.AccelLen())
	assert.Equal(t, 3, sb.GyroLen())
	assert.Equal(t, 3, sb.MagLen())
}

func TestSmoothingBufferLengthGrowsUpToWindow(t *testing.T) {
	sb := NewSmoothingBuffer(5)

	sb.Push(Vec3{X: 1}, Vec3{}, Vec3{})
	assert.Equal(t, 1, sb.AccelLen())

	sb.Push(Vec3{X: 2}, Vec3{}, Vec3{})
	assert.Equal(t, 2, sb.AccelLen())
}

func TestRingBufferMeanIsComponentWiseAverage(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(Vec3{X: 1, Y: 2, Z: 3})
	rb.push(Vec3{X: 3, Y: 4, Z: 5})

	mean := rb.mean()
	assert.InDelta(t, 2.0, mean.X, 1e-9)
	assert.InDelta(t, 3.0, mean.Y, 1e-9)
	assert.InDelta(t, 4.0, mean.Z, 1e-9)
}

func TestRingBufferEvictsOldestOnOverflow(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(Vec3{X: 1})
	rb.push(Vec3{X: 2})
	rb.push(Vec3{X: 3})

	vals := rb.values()
	assert.Equal(t, []Vec3{{X: 2}, {X: 3}}, vals)
}

func TestFuseSinglePacketMatchesKnownScenario(t *testing.T) {
	e := NewEngine(5, 0.6)

	out := e.Fuse(Vec3{X: 0, Y: 0, Z: 9.81}, Vec3{}, Vec3{X: 20, Y: 0, Z: 40})

	assert.InDelta(t, 0.5, out.Confidence, 1e-9) // buffer len 1 special case
	// pitch = roll = 0 for a pure-Z accel reading, so Mx = mag.X, My = mag.Y
	// and heading = atan2(-My, Mx) = atan2(0, 20) = 0; see DESIGN.md.
	assert.InDelta(t, 0, out.Heading, 1)
	assert.InDelta(t, 9.81, out.SpeedMps, 1e-9)
	assert.True(t, out.ShouldUseGPS) // confidence 0.5 < threshold 0.6
}

func TestFuseConfidenceDropsWithHighZVariance(t *testing.T) {
	e := NewEngine(5, 0.6)

	e.Fuse(Vec3{X: 0, Y: 0, Z: 1}, Vec3{}, Vec3{X: 20, Y: 0, Z: 40})
	e.Fuse(Vec3{X: 0, Y: 0, Z: 50}, Vec3{}, Vec3{X: 20, Y: 0, Z: 40})
	out := e.Fuse(Vec3{X: 0, Y: 0, Z: -40}, Vec3{}, Vec3{X: 20, Y: 0, Z: 40})

	assert.Less(t, out.Confidence, 0.6)
	assert.True(t, out.ShouldUseGPS)
}

func TestFuseOutputInvariants(t *testing.T) {
	e := NewEngine(5, 0.6)

	for i := 0; i < 20; i++ {
		out := e.Fuse(Vec3{X: float64(i % 3), Y: 1, Z: 9.8}, Vec3{X: 0.1}, Vec3{X: 10, Y: 5, Z: 30})

		assert.GreaterOrEqual(t, out.Heading, 0.0)
		assert.Less(t, out.Heading, 360.0)
		assert.GreaterOrEqual(t, out.Confidence, 0.0)
		assert.LessOrEqual(t, out.Confidence, 1.0)
		assert.GreaterOrEqual(t, out.SpeedMps, 0.0)
	}
}

func TestComputeConfidenceZeroVarianceIsOne(t *testing.T) {
	samples := []Vec3{{Z: 5}, {Z: 5}, {Z: 5}}
	assert.Equal(t, 1.0, computeConfidence(samples))
}
