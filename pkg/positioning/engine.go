// Package positioning implements the positioning engine (spec component
// C6): it chooses between a GPS fix and dead-reckoning for outdoor
// position, computes an indoor (x, y) via trilateration when enough RSSI
// beacons are visible, and writes the result back into the device store.
// Grounded on the teacher's pkg/gps/production_location_manager.go, which
// similarly picks among several position sources in priority order before
// writing a single resolved fix.
package positioning

import (
	"context"
	"time"

	"github.com/trailmesh/navcore/pkg/config"
	"github.com/trailmesh/navcore/pkg/devicestore"
	"github.com/trailmesh/navcore/pkg/fusion"
	"github.com/trailmesh/navcore/pkg/geo"
	"github.com/trailmesh/navcore/pkg/logx"
)

// GPSFix is the optional GPS reading carried on an inbound packet.
type GPSFix struct {
	Lat      float64
	Lng      float64
	Accuracy float64
}

// Beacon is one RSSI-ranged anchor observed alongside a packet: a known
// anchor position plus the raw RSSI used to estimate range.
type Beacon struct {
	DeviceID string
	RSSI     int
	WiFiMAC  string
	Position geo.Anchor // X, Y pre-populated by the caller; Range is filled in here
}

// Packet is everything the positioning engine needs about one inbound
// sensor packet, beyond the fused state.
type Packet struct {
	DeviceID      string
	GPS           *GPSFix
	RSSIBeacons   []Beacon
	IsBaseStation bool
}

// outdoorAssist resolves an outdoor fix from Wi-Fi beacons when no GPS fix
// is present in the packet. Implemented by *geo.GoogleAssist; an interface
// here keeps the engine testable without a live API key.
type outdoorAssist interface {
	Locate(ctx context.Context, beacons []geo.Beacon) (geo.Point, bool)
}

// Engine resolves positions for inbound packets and writes them into the
// device store.
type Engine struct {
	store           *devicestore.Store
	cfg             *config.Config
	assist          outdoorAssist
	logger          *logx.Logger
}

// New creates a positioning engine. assist may be nil to disable the
// Google-Maps-assisted outdoor fallback entirely.
func New(store *devicestore.Store, cfg *config.Config, assist outdoorAssist, logger *logx.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, assist: assist, logger: logger}
}

// Resolve implements spec.md §4.4: it reads the device's prior state,
// picks GPS or dead-reckoning for the outdoor fix, trilaterates an indoor
// fix when enough beacons are present, and upserts the merged device
// state.
func (e *Engine) Resolve(ctx context.Context, pkt Packet, fused fusion.Output, now time.Time) devicestore.Device {
	prev, hadPrev := e.store.Get(pkt.DeviceID)

	lat, lng := prev.Lat, prev.Lng
	if !hadPrev && pkt.GPS != nil {
		lat, lng = pkt.GPS.Lat, pkt.GPS.Lng
	}

	switch {
	case fused.ShouldUseGPS && pkt.GPS != nil:
		lat, lng = pkt.GPS.Lat, pkt.GPS.Lng
	case fused.ShouldUseGPS && pkt.GPS == nil && e.assist != nil:
		if p, ok := e.assist.Locate(ctx, toGeoBeacons(pkt.RSSIBeacons)); ok {
			lat, lng = p.Lat, p.Lng
		} else if hadPrev {
			lat, lng = e.deadReckon(prev, fused, now)
		}
	case hadPrev:
		lat, lng = e.deadReckon(prev, fused, now)
	}

	patch := devicestore.Patch{
		IsBaseStation: &pkt.IsBaseStation,
		Lat:           &lat,
		Lng:           &lng,
		Heading:       &fused.Heading,
		SpeedMps:      &fused.SpeedMps,
		Confidence:    &fused.Confidence,
		LastRawSensor: &devicestore.RawSensor{Accel: fused.SmoothedAccel, Gyro: fused.SmoothedGyro, Mag: fused.SmoothedMag},
	}

	if len(pkt.RSSIBeacons) > 0 {
		rssi := make(map[string]int, len(pkt.RSSIBeacons))
		for _, b := range pkt.RSSIBeacons {
			rssi[b.DeviceID] = b.RSSI
		}
		patch.RSSI = rssi
	}

	if indoor, ok := e.trilaterate(pkt.RSSIBeacons); ok {
		patch.IndoorPosition = &devicestore.IndoorPosition{X: indoor.Lat, Y: indoor.Lng}
	} else {
		patch.ClearIndoor = true
	}

	return e.store.Update(pkt.DeviceID, patch)
}

func (e *Engine) deadReckon(prev devicestore.Device, fused fusion.Output, now time.Time) (float64, float64) {
	if prev.LastUpdate.IsZero() {
		return prev.Lat, prev.Lng
	}
	dtMs := float64(now.Sub(prev.LastUpdate).Milliseconds())
	out := geo.DeadReckon(geo.Point{Lat: prev.Lat, Lng: prev.Lng}, fused.Heading, fused.SpeedMps, dtMs)
	return out.Lat, out.Lng
}

// trilaterate computes an indoor position from RSSI beacons when at least
// MinBaseStations are present, per spec.md §4.4 step 4. The first three
// beacons (by input order) are used as anchors.
func (e *Engine) trilaterate(beacons []Beacon) (geo.Point, bool) {
	if len(beacons) < e.cfg.MinBaseStations {
		return geo.Point{}, false
	}

	anchors := make([]geo.Anchor, 0, 3)
	for i := 0; i < 3 && i < len(beacons); i++ {
		b := beacons[i]
		dist := geo.RSSIToDistance(float64(b.RSSI), e.cfg.RSSIMeasuredAt1m, e.cfg.RSSIPathLossExponent)
		anchors = append(anchors, geo.Anchor{X: b.Position.X, Y: b.Position.Y, Range: dist})
	}

	x, y, ok := geo.Trilaterate(anchors[0], anchors[1], anchors[2])
	if !ok {
		return geo.Point{}, false
	}
	return geo.Point{Lat: x, Lng: y}, true
}

func toGeoBeacons(in []Beacon) []geo.Beacon {
	out := make([]geo.Beacon, 0, len(in))
	for _, b := range in {
		out = append(out, geo.Beacon{DeviceID: b.DeviceID, RSSI: b.RSSI, WiFiMAC: b.WiFiMAC})
	}
	return out
}
