package geo

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/trailmesh/navcore/pkg/logx"
)

// Beacon is a radio access point observed by a device, carried over from
// the ingest payload's rssiBeacons (spec.md §6). WiFiMAC is copied as-is
// from the caller's beacon and is not derived from the beacon ID;
// GoogleAssist ignores beacons whose WiFiMAC is empty.
type Beacon struct {
	DeviceID string
	RSSI     int
	WiFiMAC  string
}

// GoogleAssist is an optional outdoor-position fallback used by the
// positioning engine (spec component C6) when a device wants a GPS fix
// (fusion says shouldUseGPS) but the inbound packet carries no gps field.
// It is never on the synchronous ingest hot path for more than a single
// best-effort HTTP round trip, and it is disabled whenever no API key is
// configured — see SPEC_FULL.md §4.1.
type GoogleAssist struct {
	client *maps.Client
	logger *logx.Logger
}

// NewGoogleAssist constructs a GoogleAssist client. apiKey == "" disables
// the assist: Locate always returns (Point{}, false) in that case.
func NewGoogleAssist(apiKey string, logger *logx.Logger) *GoogleAssist {
	if apiKey == "" {
		return &GoogleAssist{logger: logger}
	}

	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		logger.Warn("google maps assist disabled: client construction failed", "error", err.Error())
		return &GoogleAssist{logger: logger}
	}
	return &GoogleAssist{client: client, logger: logger}
}

// Locate attempts to resolve an outdoor fix from the Wi-Fi access points
// among the given beacons. It returns (Point{}, false) whenever the assist
// is disabled, there are too few usable access points, or the API call
// fails — callers must treat that exactly like "no GPS fix available" per
// spec.md §4.9 (every fallback is total, never an error to the caller).
func (g *GoogleAssist) Locate(ctx context.Context, beacons []Beacon) (Point, bool) {
	if g.client == nil {
		return Point{}, false
	}

	var aps []maps.WiFiAccessPoint
	for _, b := range beacons {
		if b.WiFiMAC == "" {
			continue
		}
		aps = append(aps, maps.WiFiAccessPoint{
			MACAddress:     b.WiFiMAC,
			SignalStrength: float64(b.RSSI),
		})
	}
	if len(aps) < 2 {
		return Point{}, false
	}

	req := &maps.GeolocationRequest{
		WiFiAccessPoints: aps,
		ConsiderIP:       false,
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		g.logger.Debug("google maps geolocate failed", "error", err.Error())
		return Point{}, false
	}

	return Point{Lat: resp.Location.Lat, Lng: resp.Location.Lng}, true
}

// String implements fmt.Stringer for diagnostics/logging.
func (b Beacon) String() string {
	return fmt.Sprintf("%s(rssi=%d)", b.DeviceID, b.RSSI)
}
