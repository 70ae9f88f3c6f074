// Package dispatch orchestrates one inbound sensor packet end-to-end
// (spec component C9): fuse, position, broadcast, scan, build alerts,
// emit. Grounded on the teacher's pkg/decision/engine.go's single
// orchestration entry point pulling together several subsystems per
// decision cycle, and on its dual-sink pattern (pkg/mqtt + pkg/ubus
// publishing the same event) generalized here into a single EventSink
// interface.
package dispatch

import (
	"time"

	"github.com/trailmesh/navcore/pkg/alerts"
	"github.com/trailmesh/navcore/pkg/logx"
)

// PositionUpdate is the "position:update" event payload.
type PositionUpdate struct {
	DeviceID      string   `json:"deviceId"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Heading       float64  `json:"heading"`
	SpeedMps      float64  `json:"speedMps"`
	Confidence    float64  `json:"confidence"`
	IndoorX       *float64 `json:"indoorX,omitempty"`
	IndoorY       *float64 `json:"indoorY,omitempty"`
	IsBaseStation bool     `json:"isBaseStation"`
	Timestamp     time.Time `json:"timestamp"`
}

// DeviceLeft is the "device:left" event payload.
type DeviceLeft struct {
	DeviceID string `json:"deviceId"`
}

// Registered is the "registered" event payload.
type Registered struct {
	DeviceID string `json:"deviceId"`
	Message  string `json:"message"`
}

// EventSink is the abstraction every event fan-out target implements —
// MQTT, a WebSocket hub, or a capturing test sink. Tests inject a
// capturing sink instead of standing up real infrastructure, per the
// source's trait/interface abstraction over its in-process pub/sub.
type EventSink interface {
	PositionUpdate(PositionUpdate)
	Alert(alerts.Alert)
	DeviceLeft(DeviceLeft)
	Registered(Registered)
}

// MultiSink fans one event out to several sinks, mirroring the source's
// simultaneous MQTT + local-bus publication of the same event.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a sink that forwards every event to each of sinks
// in order.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) PositionUpdate(e PositionUpdate) {
	for _, s := range m.sinks {
		s.PositionUpdate(e)
	}
}

func (m *MultiSink) Alert(a alerts.Alert) {
	for _, s := range m.sinks {
		s.Alert(a)
	}
}

func (m *MultiSink) DeviceLeft(e DeviceLeft) {
	for _, s := range m.sinks {
		s.DeviceLeft(e)
	}
}

func (m *MultiSink) Registered(e Registered) {
	for _, s := range m.sinks {
		s.Registered(e)
	}
}

// LogSink is the always-available EventSink fallback: it logs alerts at
// info level and every other event at debug level instead of publishing
// anywhere. Wired alongside whichever
// real sinks are configured so events are never silently dropped when, say,
// MQTT is disabled.
type LogSink struct {
	logger *logx.Logger
}

// NewLogSink creates a LogSink writing through logger.
func NewLogSink(logger *logx.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) PositionUpdate(e PositionUpdate) {
	l.logger.Debug("position:update", "deviceId", e.DeviceID, "lat", e.Lat, "lng", e.Lng, "speedMps", e.SpeedMps)
}

func (l *LogSink) Alert(a alerts.Alert) {
	l.logger.Info("alert", "kind", a.Kind, "severity", a.Severity, "participants", a.Participants, "message", a.Message)
}

func (l *LogSink) DeviceLeft(e DeviceLeft) {
	l.logger.Debug("device:left", "deviceId", e.DeviceID)
}

func (l *LogSink) Registered(e Registered) {
	l.logger.Debug("registered", "deviceId", e.DeviceID, "message", e.Message)
}
