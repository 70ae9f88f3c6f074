// Package geo implements the pure geometry functions the fusion and
// positioning pipeline is built on: Haversine distance, dead-reckoning
// integration, RSSI-to-distance conversion, and 2-D trilateration (spec
// component C2). Every function here is pure and total on its documented
// domain — invalid input (zero-length basis, degenerate anchors) yields an
// absent result via a boolean/pointer, never a panic, per spec.md §4.1 and
// §4.9.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all spherical-geometry
// calculations in this package.
const EarthRadiusMeters = 6371000.0

// Point is a WGS-84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Haversine returns the great-circle distance between a and b in meters.
// It is symmetric (Haversine(a, b) == Haversine(b, a)) and zero when a == b.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	d := EarthRadiusMeters * c
	if d < 0 {
		return 0
	}
	return d
}

// DeadReckon advances a position by speedMps over dtMs milliseconds along
// headingDeg (0 = North, clockwise). It preserves the source convention
// exactly (bearing 0 adds to latitude, per spec.md §4.1's explicit note) so
// that replayed trajectories stay identical: callers must not "fix" this to
// a more conventional bearing formula.
//
// speed == 0 or dt == 0 is the identity: the returned point equals the
// input point.
func DeadReckon(p Point, headingDeg, speedMps float64, dtMs float64) Point {
	if speedMps == 0 || dtMs == 0 {
		return p
	}

	d := speedMps * (dtMs / 1000.0)
	headingRad := headingDeg * math.Pi / 180

	latRad := p.Lat * math.Pi / 180

	dLat := (d / EarthRadiusMeters) * (180 / math.Pi) * math.Cos(headingRad)

	out := Point{Lat: p.Lat + dLat}

	cosLat := math.Cos(latRad)
	if cosLat == 0 {
		// Pole singularity: longitude is undefined, leave it unchanged
		// rather than dividing by zero.
		out.Lng = p.Lng
		return out
	}

	dLng := (d / EarthRadiusMeters) * (180 / math.Pi) * math.Sin(headingRad) / cosLat
	out.Lng = p.Lng + dLng
	return out
}

// RSSIToDistance converts a received signal strength to an estimated
// distance in meters using the log-distance path-loss model:
//
//	d = 10^((rssiRef - rssi) / (10*n))
func RSSIToDistance(rssi, rssiRef, pathLossExponent float64) float64 {
	if pathLossExponent == 0 {
		return 0
	}
	exponent := (rssiRef - rssi) / (10 * pathLossExponent)
	return math.Pow(10, exponent)
}

// Anchor is a trilateration anchor: a known planar position and an
// estimated range to the target.
type Anchor struct {
	X, Y  float64
	Range float64
}

// Trilaterate solves for a 2-D point given three anchors with known
// positions and estimated distances to the target, using the standard
// translate-and-rotate trilateration solution. It returns (point, true) on
// success, or (Point{}, false) when the anchor basis is degenerate
// (coincident anchors, collinear anchors) — per spec.md §4.1, degenerate
// geometry yields an absent result rather than a crash.
//
// NOTE: the projection i = (C-A)·ex is computed as a plain scalar here, so
// collinear anchors leave no perpendicular component (j == 0).
func Trilaterate(a, b, c Anchor) (float64, float64, bool) {
	bax := b.X - a.X
	bay := b.Y - a.Y
	d := math.Hypot(bax, bay)
	if d == 0 {
		return 0, 0, false
	}
	exX := bax / d
	exY := bay / d

	cax := c.X - a.X
	cay := c.Y - a.Y

	i := cax*exX + cay*exY // scalar, not a one-element array

	eyxRaw := cax - i*exX
	eyyRaw := cay - i*exY
	j := math.Hypot(eyxRaw, eyyRaw)
	if j == 0 {
		return 0, 0, false
	}
	eyX := eyxRaw / j
	eyY := eyyRaw / j

	x := (a.Range*a.Range - b.Range*b.Range + d*d) / (2 * d)
	y := (a.Range*a.Range-c.Range*c.Range+i*i+j*j-2*i*x) / (2 * j)

	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}

	resultX := a.X + x*exX + y*eyX
	resultY := a.Y + x*exY + y*eyY
	return resultX, resultY, true
}
