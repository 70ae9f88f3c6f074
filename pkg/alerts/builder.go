// Package alerts builds and deduplicates proximity and speed alerts (spec
// component C8).
package alerts

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trailmesh/navcore/pkg/proximity"
)

// Kind identifies the category of an alert.
type Kind string

const (
	KindProximityWarning Kind = "PROXIMITY_WARNING"
	KindCollisionWarning Kind = "COLLISION_WARNING"
	KindSpeedExceeded    Kind = "SPEED_EXCEEDED"
)

// Alert is a dispatched alert record (spec.md §3's Alert entity). ID is a
// uuid assigned when an alert is emitted; it is not part of the dedup key,
// so two emissions of the same key carry different IDs. Suppressed alerts
// are not built and have no ID.
type Alert struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Severity     string    `json:"severity"`
	Participants []string  `json:"participants"`
	DistanceM    *float64  `json:"distanceM,omitempty"`
	SpeedMps     *float64  `json:"speedMps,omitempty"`
	LimitMps     *float64  `json:"limitMps,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// TimestampISO8601 renders Timestamp the way the wire contract expects.
func (a Alert) TimestampISO8601() string {
	return a.Timestamp.UTC().Format(time.RFC3339)
}

// ProximityKey returns the dedup key for an unordered device pair:
// "proximity:<sorted(A,B)>".
func ProximityKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("proximity:%s,%s", ids[0], ids[1])
}

// SpeedKey returns the dedup key for a device's speed alert.
func SpeedKey(deviceID string) string {
	return fmt.Sprintf("speed:%s", deviceID)
}

// Builder constructs Alert records from proximity events and speed
// readings, deduplicating via an embedded Dedup table.
type Builder struct {
	dedup       *Dedup
	maxSpeedMps float64
	now         func() time.Time
}

// NewBuilder creates an alert builder with the given dedup table and
// speed-alert threshold.
func NewBuilder(dedup *Dedup, maxSpeedMps float64) *Builder {
	return &Builder{dedup: dedup, maxSpeedMps: maxSpeedMps, now: time.Now}
}

// ProximityAlert builds an Alert for a proximity event, or (Alert{}, false)
// if the dedup window suppresses it.
func (b *Builder) ProximityAlert(e proximity.Event) (Alert, bool) {
	key := ProximityKey(e.A, e.B)
	if !b.dedup.ShouldEmit(key) {
		return Alert{}, false
	}

	kind := KindProximityWarning
	if e.Severity == proximity.SeverityCollision {
		kind = KindCollisionWarning
	}

	d := e.DistanceM
	return Alert{
		ID:           uuid.NewString(),
		Kind:         kind,
		Severity:     string(e.Severity),
		Participants: []string{e.A, e.B},
		DistanceM:    &d,
		Message:      fmt.Sprintf("%s between %s and %s at %.2fm", kind, e.A, e.B, e.DistanceM),
		Timestamp:    b.now(),
	}, true
}

// SpeedAlert builds an Alert when a device's speed exceeds the configured
// limit, or (Alert{}, false) if it does not, or the dedup window
// suppresses it.
func (b *Builder) SpeedAlert(deviceID string, speedMps float64) (Alert, bool) {
	if speedMps <= b.maxSpeedMps {
		return Alert{}, false
	}

	key := SpeedKey(deviceID)
	if !b.dedup.ShouldEmit(key) {
		return Alert{}, false
	}

	speed := round2(speedMps)
	limit := b.maxSpeedMps
	return Alert{
		ID:           uuid.NewString(),
		Kind:         KindSpeedExceeded,
		Severity:     "warning",
		Participants: []string{deviceID},
		SpeedMps:     &speed,
		LimitMps:     &limit,
		Message:      fmt.Sprintf("%s exceeded safe speed: %.2f m/s (limit %.2f)", deviceID, speed, limit),
		Timestamp:    b.now(),
	}, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
