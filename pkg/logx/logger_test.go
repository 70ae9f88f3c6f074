package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("debug", "devicestore", &buf)

	logger.Info("device updated", "deviceId", "dev-A", "lastUpdate", int64(1000))

	out := buf.String()
	assert.Contains(t, out, "device updated")
	assert.Contains(t, out, "deviceId=dev-A")
	assert.Contains(t, out, "component=devicestore")
}

func TestLoggerWithAddsPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("debug", "", &buf)

	scoped := logger.With("deviceId", "dev-B")
	scoped.Warn("ttl pruned")

	assert.True(t, strings.Contains(buf.String(), "deviceId=dev-B"))
}

func TestLoggerDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("not-a-level", "", &buf)

	logger.Debug("should not appear")
	logger.Info("should appear")

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "should appear"))
}
