package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailmesh/navcore/pkg/alerts"
	"github.com/trailmesh/navcore/pkg/config"
	"github.com/trailmesh/navcore/pkg/devicestore"
	"github.com/trailmesh/navcore/pkg/logx"
	"github.com/trailmesh/navcore/pkg/positioning"
	"github.com/trailmesh/navcore/pkg/proximity"
)

// capturingSink is a test EventSink that records every event it receives,
// per SPEC_FULL.md's "tests inject a capturing sink" design note.
type capturingSink struct {
	positions []PositionUpdate
	alerts    []alerts.Alert
	left      []DeviceLeft
	registered []Registered
}

func (c *capturingSink) PositionUpdate(e PositionUpdate) { c.positions = append(c.positions, e) }
func (c *capturingSink) Alert(a alerts.Alert)             { c.alerts = append(c.alerts, a) }
func (c *capturingSink) DeviceLeft(e DeviceLeft)          { c.left = append(c.left, e) }
func (c *capturingSink) Registered(e Registered)          { c.registered = append(c.registered, e) }

func newTestDispatcher() (*Dispatcher, *capturingSink) {
	logger := logx.NewLogger("error", "dispatch-test")
	cfg := config.Default()
	store := devicestore.New(logger)
	positioner := positioning.New(store, cfg, nil, logger)
	scanner := proximity.New(cfg)
	builder := alerts.NewBuilder(alerts.NewDedup(cfg.DedupWindow), cfg.MaxSafeSpeedMps)
	sink := &capturingSink{}
	return New(store, positioner, scanner, builder, sink, cfg, logger), sink
}

func TestIngestDropsMalformedPacket(t *testing.T) {
	d, sink := newTestDispatcher()
	d.Ingest(context.Background(), Packet{})

	assert.Empty(t, sink.positions)
}

func TestIngestSingleUpdateMatchesKnownScenario(t *testing.T) {
	d, sink := newTestDispatcher()

	d.Ingest(context.Background(), Packet{
		DeviceID:      "dev-A",
		Accelerometer: Vec3{X: 0, Y: 0, Z: 9.81},
		Gyroscope:     Vec3{},
		Magnetometer:  Vec3{X: 20, Y: 0, Z: 40},
		GPS:           &positioning.GPSFix{Lat: 0, Lng: 0},
	})

	require.Len(t, sink.positions, 1)
	update := sink.positions[0]
	assert.InDelta(t, 90, update.Heading, 1)
	assert.InDelta(t, 9.81, update.SpeedMps, 1e-9)
	assert.InDelta(t, 0.5, update.Confidence, 1e-9)
}

func TestIngestEmitsProximityWarningOnce(t *testing.T) {
	d, sink := newTestDispatcher()

	pktA := Packet{DeviceID: "dev-A", GPS: &positioning.GPSFix{Lat: 0, Lng: 0}}
	pktB := Packet{DeviceID: "dev-B", GPS: &positioning.GPSFix{Lat: 0, Lng: 0.00003}}

	d.Ingest(context.Background(), pktA)
	d.Ingest(context.Background(), pktB)

	require.Len(t, sink.alerts, 1)
	assert.Equal(t, alerts.KindProximityWarning, sink.alerts[0].Kind)

	// Repeat within the dedup window: no new alert.
	d.Ingest(context.Background(), pktA)
	d.Ingest(context.Background(), pktB)
	assert.Len(t, sink.alerts, 1)
}

func TestIngestEmitsSpeedAlertWhenOverLimit(t *testing.T) {
	d, sink := newTestDispatcher()

	d.Ingest(context.Background(), Packet{
		DeviceID:      "dev-A",
		Accelerometer: Vec3{X: 0, Y: 0, Z: 20},
		GPS:           &positioning.GPSFix{Lat: 0, Lng: 0},
	})

	found := false
	for _, a := range sink.alerts {
		if a.Kind == alerts.KindSpeedExceeded {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDisconnectRemovesDeviceAndBroadcastsLeft(t *testing.T) {
	d, sink := newTestDispatcher()

	d.Ingest(context.Background(), Packet{DeviceID: "dev-A", GPS: &positioning.GPSFix{Lat: 0, Lng: 0}})
	d.Disconnect("dev-A")

	require.Len(t, sink.left, 1)
	assert.Equal(t, "dev-A", sink.left[0].DeviceID)

	summary := d.ListDevices()
	assert.Equal(t, 0, summary.TotalDevices)
}

func TestRegisterBroadcastsRegistered(t *testing.T) {
	d, sink := newTestDispatcher()

	d.Register("base-1", true, nil)

	require.Len(t, sink.registered, 1)
	assert.Equal(t, "base-1", sink.registered[0].DeviceID)
}

func TestListDevicesEmptyWorld(t *testing.T) {
	d, _ := newTestDispatcher()

	summary := d.ListDevices()
	assert.Equal(t, 0, summary.TotalDevices)
	assert.Equal(t, 0, summary.BaseStations)
	assert.Empty(t, summary.Devices)
}

func TestScanAlertsReturnsRawEventsWithoutDedup(t *testing.T) {
	d, _ := newTestDispatcher()

	d.Ingest(context.Background(), Packet{DeviceID: "dev-A", GPS: &positioning.GPSFix{Lat: 0, Lng: 0}})
	d.Ingest(context.Background(), Packet{DeviceID: "dev-B", GPS: &positioning.GPSFix{Lat: 0, Lng: 0.00001}})

	events := d.ScanAlerts()
	require.Len(t, events, 1)
	assert.Equal(t, proximity.SeverityCollision, events[0].Severity)

	// A second call sees the same raw event again — scanAlerts is
	// undeduplicated, unlike the alerts emitted during Ingest.
	events = d.ScanAlerts()
	require.Len(t, events, 1)
}

func TestPruneTearsDownFusionEngineAndBroadcastsLeft(t *testing.T) {
	d, sink := newTestDispatcher()

	d.Ingest(context.Background(), Packet{DeviceID: "dev-A", GPS: &positioning.GPSFix{Lat: 0, Lng: 0}})
	d.mu.Lock()
	_, engineExists := d.engines["dev-A"]
	d.mu.Unlock()
	require.True(t, engineExists)

	// Force staleness with a negative-duration prune window (every device
	// is older than -1s) rather than sleeping in the test.
	d.Prune(-1 * time.Second)

	d.mu.Lock()
	_, stillExists := d.engines["dev-A"]
	d.mu.Unlock()
	assert.False(t, stillExists)

	require.Len(t, sink.left, 1)
	assert.Equal(t, "dev-A", sink.left[0].DeviceID)
}
