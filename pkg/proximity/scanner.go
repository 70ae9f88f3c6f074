// Package proximity implements the proximity scanner (spec component C7):
// an O(n²) pairwise distance scan over active devices, classified into
// warning/collision severities. Grounded on the teacher's
// pkg/location/clustering.go, which computes pairwise distances between
// members in the same nested-loop shape before clustering them.
package proximity

import (
	"math"

	"github.com/trailmesh/navcore/pkg/config"
	"github.com/trailmesh/navcore/pkg/devicestore"
	"github.com/trailmesh/navcore/pkg/geo"
)

// Severity classifies a proximity event.
type Severity string

const (
	SeverityWarning   Severity = "warning"
	SeverityCollision Severity = "collision"
)

// Event is one unordered-pair proximity finding. Safe pairs (distance
// above the warning threshold) are never materialized.
type Event struct {
	A         string
	B         string
	DistanceM float64
	Severity  Severity
}

// Scanner holds the configured distance thresholds used to classify pairs.
type Scanner struct {
	cfg *config.Config
}

// New creates a proximity scanner using the given configuration's
// collision/warning distance thresholds.
func New(cfg *config.Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan snapshots the active device list and returns every pair closer than
// WarningDistanceMeters, classified by severity. Base stations are
// trilateration anchors, not mobile targets, and are excluded from
// pairwise scoring entirely — a stationary base station can never collide
// with or warn about another device.
func (s *Scanner) Scan(devices []devicestore.Device) []Event {
	mobile := devices[:0:0]
	for _, d := range devices {
		if !d.IsBaseStation {
			mobile = append(mobile, d)
		}
	}

	var events []Event

	for i := 0; i < len(mobile); i++ {
		for j := i + 1; j < len(mobile); j++ {
			a, b := mobile[i], mobile[j]
			if !a.HasFix || !b.HasFix {
				continue
			}

			d := geo.Haversine(geo.Point{Lat: a.Lat, Lng: a.Lng}, geo.Point{Lat: b.Lat, Lng: b.Lng})

			var severity Severity
			switch {
			case d < s.cfg.CollisionDistanceMeters:
				severity = SeverityCollision
			case d < s.cfg.WarningDistanceMeters:
				severity = SeverityWarning
			default:
				continue
			}

			events = append(events, Event{
				A:         a.DeviceID,
				B:         b.DeviceID,
				DistanceM: round2(d),
				Severity:  severity,
			})
		}
	}

	return events
}

// ScanForDevice filters Scan's result to pairs containing id.
func (s *Scanner) ScanForDevice(devices []devicestore.Device, id string) []Event {
	all := s.Scan(devices)
	out := all[:0:0]
	for _, e := range all {
		if e.A == id || e.B == id {
			out = append(out, e)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
