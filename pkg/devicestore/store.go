// Package devicestore is the authoritative in-memory map of device state
// (spec component C5): upsert, lookup, TTL-based pruning, snapshot
// persistence, and summary queries. It is an explicit value threaded
// through the dispatcher, not a process-singleton — grounded on the
// teacher's pkg/telem/store.go Store, which holds its state behind a
// single sync.RWMutex rather than ambient globals.
package devicestore

import (
	"sort"
	"sync"
	"time"

	"github.com/trailmesh/navcore/pkg/fusion"
	"github.com/trailmesh/navcore/pkg/logx"
)

// IndoorPosition is a device's local-frame (x, y) fix, present only once
// at least MinBaseStations anchors are visible.
type IndoorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawSensor is the last accepted accel/gyro/mag triple for a device,
// carried for diagnostics only.
type RawSensor struct {
	Accel fusion.Vec3 `json:"accel"`
	Gyro  fusion.Vec3 `json:"gyro"`
	Mag   fusion.Vec3 `json:"mag"`
}

// Alert is a minimal record of an alert attributable to a device, kept in
// the device's bounded alert ring. The full alert shape lives in
// pkg/alerts; this is the projection the store retains.
type Alert struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Device is the central DeviceState entity, keyed by DeviceID.
type Device struct {
	DeviceID       string           `json:"deviceId"`
	IsBaseStation  bool             `json:"isBaseStation"`
	Lat            float64          `json:"lat"`
	Lng            float64          `json:"lng"`
	HasFix         bool             `json:"hasFix"`
	IndoorPosition *IndoorPosition  `json:"indoorPosition,omitempty"`
	Heading        float64          `json:"heading"`
	SpeedMps       float64          `json:"speedMps"`
	Confidence     float64          `json:"confidence"`
	LastUpdate     time.Time        `json:"lastUpdate"`
	RSSI           map[string]int   `json:"rssi,omitempty"`
	LastRawSensor  *RawSensor       `json:"lastRawSensor,omitempty"`
	Alerts         []Alert          `json:"alerts,omitempty"`
}

const maxAlerts = 50

// Patch carries the fields a caller wants to merge into a device record.
// A nil pointer field means "leave unchanged" — this is the product-type
// encoding of the original's dynamic-shape merge, so presence is always
// explicit rather than inferred from a zero value.
type Patch struct {
	IsBaseStation  *bool
	Lat            *float64
	Lng            *float64
	IndoorPosition *IndoorPosition
	ClearIndoor    bool
	Heading        *float64
	SpeedMps       *float64
	Confidence     *float64
	RSSI           map[string]int
	LastRawSensor  *RawSensor
}

// Clock abstracts wall-clock time so pruning and TTL tests are
// deterministic, per the teacher's preference for injected time sources
// over ambient timers (see pkg/scheduler).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the device store. Create one per process and pass it
// explicitly to every component that needs it; there is no package-level
// singleton.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*Device
	clock   Clock
	logger  *logx.Logger
}

// New creates an empty store using the real wall clock.
func New(logger *logx.Logger) *Store {
	return &Store{
		devices: make(map[string]*Device),
		clock:   realClock{},
		logger:  logger,
	}
}

// NewWithClock creates a store using the given Clock, for deterministic
// tests of TTL pruning.
func NewWithClock(logger *logx.Logger, clock Clock) *Store {
	return &Store{
		devices: make(map[string]*Device),
		clock:   clock,
		logger:  logger,
	}
}

// Update shallow-merges patch over the existing entry for id (or a fresh
// record), forces LastUpdate = now, and returns the merged value.
func (s *Store) Update(id string, patch Patch) Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		d = &Device{DeviceID: id}
		s.devices[id] = d
	}

	if patch.IsBaseStation != nil {
		d.IsBaseStation = *patch.IsBaseStation
	}
	if patch.Lat != nil {
		d.Lat = *patch.Lat
		d.HasFix = true
	}
	if patch.Lng != nil {
		d.Lng = *patch.Lng
		d.HasFix = true
	}
	if patch.ClearIndoor {
		d.IndoorPosition = nil
	}
	if patch.IndoorPosition != nil {
		d.IndoorPosition = patch.IndoorPosition
	}
	if patch.Heading != nil {
		d.Heading = *patch.Heading
	}
	if patch.SpeedMps != nil {
		d.SpeedMps = *patch.SpeedMps
	}
	if patch.Confidence != nil {
		d.Confidence = *patch.Confidence
	}
	if patch.RSSI != nil {
		if d.RSSI == nil {
			d.RSSI = make(map[string]int, len(patch.RSSI))
		}
		for k, v := range patch.RSSI {
			d.RSSI[k] = v
		}
	}
	if patch.LastRawSensor != nil {
		d.LastRawSensor = patch.LastRawSensor
	}

	d.LastUpdate = s.clock.Now()

	return *d
}

// Get returns a copy of the device state for id, if present.
func (s *Store) Get(id string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// GetAll returns a snapshot copy of every device, sorted by DeviceID for
// stable iteration/testing.
func (s *Store) GetAll() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// GetBaseStations returns a snapshot of every device with IsBaseStation
// set, used as trilateration anchors.
func (s *Store) GetBaseStations() []Device {
	all := s.GetAll()
	out := all[:0:0]
	for _, d := range all {
		if d.IsBaseStation {
			out = append(out, d)
		}
	}
	return out
}

// AddAlert prepends alert to the device's alert ring, truncating to 50.
func (s *Store) AddAlert(id string, alert Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return
	}

	d.Alerts = append([]Alert{alert}, d.Alerts...)
	if len(d.Alerts) > maxAlerts {
		d.Alerts = d.Alerts[:maxAlerts]
	}
}

// Remove unconditionally deletes id from the store.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
}

// Summary is the projection returned by GetSummary.
type Summary struct {
	TotalDevices int              `json:"totalDevices"`
	BaseStations int              `json:"baseStations"`
	Devices      []DeviceSummary  `json:"devices"`
}

// DeviceSummary is a single device's entry in a Summary.
type DeviceSummary struct {
	DeviceID      string    `json:"deviceId"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	HasFix        bool      `json:"hasFix"`
	SpeedMps      float64   `json:"speedMps"`
	IsBaseStation bool      `json:"isBaseStation"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// GetSummary returns device counts plus a lightweight projection of every
// device, for listDevices()-style queries.
func (s *Store) GetSummary() Summary {
	all := s.GetAll()

	sum := Summary{
		Devices: make([]DeviceSummary, 0, len(all)),
	}
	for _, d := range all {
		sum.TotalDevices++
		if d.IsBaseStation {
			sum.BaseStations++
		}
		sum.Devices = append(sum.Devices, DeviceSummary{
			DeviceID:      d.DeviceID,
			Lat:           d.Lat,
			Lng:           d.Lng,
			HasFix:        d.HasFix,
			SpeedMps:      d.SpeedMps,
			IsBaseStation: d.IsBaseStation,
			LastUpdated:   d.LastUpdate,
		})
	}
	return sum
}

// Prune drops every entry with LastUpdate older than ttl, except devices
// flagged IsBaseStation — base stations may hold a fixed known position
// indefinitely with no mobile-sensor updates and must not be pruned by
// activity TTL (the SHOULD exemption). It returns the IDs removed, so
// callers (the dispatcher) can tear down any per-device state they hold
// outside the store, such as fusion smoothing buffers.
func (s *Store) Prune(ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var pruned []string
	for id, d := range s.devices {
		if d.IsBaseStation {
			continue
		}
		if now.Sub(d.LastUpdate) > ttl {
			delete(s.devices, id)
			pruned = append(pruned, id)
		}
	}
	if len(pruned) > 0 {
		s.logger.Debug("pruned stale devices", "count", len(pruned))
	}
	return pruned
}
