package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/trailmesh/navcore/pkg/alerts"
	"github.com/trailmesh/navcore/pkg/config"
	"github.com/trailmesh/navcore/pkg/devicestore"
	"github.com/trailmesh/navcore/pkg/fusion"
	"github.com/trailmesh/navcore/pkg/geo"
	"github.com/trailmesh/navcore/pkg/logx"
	"github.com/trailmesh/navcore/pkg/positioning"
	"github.com/trailmesh/navcore/pkg/proximity"
)

// Vec3 mirrors fusion.Vec3 at the ingest boundary, so callers building a
// Packet don't need to import the fusion package directly.
type Vec3 = fusion.Vec3

// RSSIBeacon is one beacon entry on an inbound packet.
type RSSIBeacon struct {
	DeviceID string
	RSSI     int
	WiFiMAC  string
	X, Y     float64
}

// Packet is an inbound sensor packet (spec.md §6's ingest(payload)).
type Packet struct {
	DeviceID      string
	Accelerometer Vec3
	Gyroscope     Vec3
	Magnetometer  Vec3
	GPS           *positioning.GPSFix
	IsBaseStation bool
	RSSIBeacons   []RSSIBeacon
	Timestamp     time.Time
}

// Valid reports whether a packet carries the minimum required fields.
// Malformed packets (missing deviceId) must be dropped silently per
// spec.md §4.9.
func (p Packet) Valid() bool {
	return p.DeviceID != ""
}

// Dispatcher orchestrates the per-packet pipeline: fuse -> position ->
// broadcast -> scan proximity -> build + emit alerts -> build + emit a
// speed alert for the packet's own device. One Dispatcher instance is
// created per process and threaded explicitly into the adapter, per the
// source's process-singleton store being re-architected as an explicit
// value (SPEC_FULL.md's design notes).
type Dispatcher struct {
	mu       sync.Mutex
	engines  map[string]*fusion.Engine

	store      *devicestore.Store
	positioner *positioning.Engine
	scanner    *proximity.Scanner
	builder    *alerts.Builder
	sink       EventSink
	cfg        *config.Config
	logger     *logx.Logger
}

// New creates a dispatcher wired to the given store, positioning engine,
// proximity scanner, alert builder, event sink, and config.
func New(store *devicestore.Store, positioner *positioning.Engine, scanner *proximity.Scanner, builder *alerts.Builder, sink EventSink, cfg *config.Config, logger *logx.Logger) *Dispatcher {
	return &Dispatcher{
		engines:    make(map[string]*fusion.Engine),
		store:      store,
		positioner: positioner,
		scanner:    scanner,
		builder:    builder,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ingest runs the full per-packet pipeline for pkt. Malformed packets are
// dropped silently and Ingest returns immediately.
func (d *Dispatcher) Ingest(ctx context.Context, pkt Packet) {
	if !pkt.Valid() {
		return
	}

	now := pkt.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	engine := d.engineFor(pkt.DeviceID)
	fused := engine.Fuse(pkt.Accelerometer, pkt.Gyroscope, pkt.Magnetometer)

	posPkt := positioning.Packet{
		DeviceID:      pkt.DeviceID,
		GPS:           pkt.GPS,
		IsBaseStation: pkt.IsBaseStation,
		RSSIBeacons:   toPositioningBeacons(pkt.RSSIBeacons),
	}
	device := d.positioner.Resolve(ctx, posPkt, fused, now)

	d.broadcastPosition(device, now)

	all := d.store.GetAll()
	for _, ev := range d.scanner.Scan(all) {
		alert, ok := d.builder.ProximityAlert(ev)
		if !ok {
			continue
		}
		d.emitAlert(alert)
	}

	if alert, ok := d.builder.SpeedAlert(pkt.DeviceID, device.SpeedMps); ok {
		d.emitAlert(alert)
	}
}

// Register upserts a skeleton device record, per spec.md §6's
// register(deviceId, {isBaseStation, knownPosition?}).
func (d *Dispatcher) Register(deviceID string, isBaseStation bool, knownPosition *geo.Point) devicestore.Device {
	patch := devicestore.Patch{IsBaseStation: &isBaseStation}
	if knownPosition != nil {
		patch.Lat = &knownPosition.Lat
		patch.Lng = &knownPosition.Lng
	}
	dev := d.store.Update(deviceID, patch)

	d.sink.Registered(Registered{DeviceID: deviceID, Message: "registered"})
	return dev
}

// Disconnect removes a device and tears down its smoothing buffers,
// broadcasting "device:left".
func (d *Dispatcher) Disconnect(deviceID string) {
	d.store.Remove(deviceID)

	d.mu.Lock()
	delete(d.engines, deviceID)
	d.mu.Unlock()

	d.sink.DeviceLeft(DeviceLeft{DeviceID: deviceID})
}

// ListDevices returns the current device summary, per spec.md §6's
// listDevices().
func (d *Dispatcher) ListDevices() devicestore.Summary {
	return d.store.GetSummary()
}

// ScanAlerts returns current proximity events with no deduplication, per
// spec.md §6's scanAlerts().
func (d *Dispatcher) ScanAlerts() []proximity.Event {
	return d.scanner.Scan(d.store.GetAll())
}

// Prune drops stale devices from the store and tears down their fusion
// smoothing buffers in lockstep, per spec.md §3's lifecycle note that
// smoothing buffers are torn down with their device. It broadcasts
// "device:left" for each device removed, same as an explicit Disconnect.
func (d *Dispatcher) Prune(ttl time.Duration) {
	removed := d.store.Prune(ttl)
	if len(removed) == 0 {
		return
	}

	d.mu.Lock()
	for _, id := range removed {
		delete(d.engines, id)
	}
	d.mu.Unlock()

	for _, id := range removed {
		d.sink.DeviceLeft(DeviceLeft{DeviceID: id})
	}
}

func (d *Dispatcher) engineFor(deviceID string) *fusion.Engine {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.engines[deviceID]
	if !ok {
		e = fusion.NewEngine(d.cfg.SmoothingWindow, d.cfg.SensorConfidenceThreshold)
		d.engines[deviceID] = e
	}
	return e
}

func (d *Dispatcher) broadcastPosition(device devicestore.Device, now time.Time) {
	update := PositionUpdate{
		DeviceID:      device.DeviceID,
		Lat:           device.Lat,
		Lng:           device.Lng,
		Heading:       device.Heading,
		SpeedMps:      device.SpeedMps,
		Confidence:    device.Confidence,
		IsBaseStation: device.IsBaseStation,
		Timestamp:     now,
	}
	if device.IndoorPosition != nil {
		update.IndoorX = &device.IndoorPosition.X
		update.IndoorY = &device.IndoorPosition.Y
	}
	d.sink.PositionUpdate(update)
}

func (d *Dispatcher) emitAlert(a alerts.Alert) {
	d.sink.Alert(a)
	for _, id := range a.Participants {
		d.store.AddAlert(id, devicestore.Alert{Kind: string(a.Kind), Message: a.Message, Timestamp: a.Timestamp})
	}
}

func toPositioningBeacons(in []RSSIBeacon) []positioning.Beacon {
	out := make([]positioning.Beacon, 0, len(in))
	for _, b := range in {
		out = append(out, positioning.Beacon{
			DeviceID: b.DeviceID,
			RSSI:     b.RSSI,
			WiFiMAC:  b.WiFiMAC,
			Position: geo.Anchor{X: b.X, Y: b.Y},
		})
	}
	return out
}
