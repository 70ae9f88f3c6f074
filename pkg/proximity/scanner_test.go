package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailmesh/navcore/pkg/config"
	"github.com/trailmesh/navcore/pkg/devicestore"
)

func TestScanEmptyWorldReturnsNoEvents(t *testing.T) {
	s := New(config.Default())
	assert.Empty(t, s.Scan(nil))
}

func TestScanClassifiesWarning(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "A", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "B", HasFix: true, Lat: 0, Lng: 0.00003}, // ~3.3m
	}

	events := s.Scan(devices)
	assert := assert.New(t)
	assert.Len(events, 1)
	assert.Equal(SeverityWarning, events[0].Severity)
	assert.GreaterOrEqual(events[0].DistanceM, 3.0)
	assert.LessOrEqual(events[0].DistanceM, 3.5)
}

func TestScanClassifiesCollision(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "A", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "B", HasFix: true, Lat: 0, Lng: 0.00001}, // ~1.1m
	}

	events := s.Scan(devices)
	assert.Len(t, events, 1)
	assert.Equal(t, SeverityCollision, events[0].Severity)
}

func TestScanOmitsSafePairs(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "A", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "B", HasFix: true, Lat: 10, Lng: 10},
	}

	assert.Empty(t, s.Scan(devices))
}

func TestScanSkipsDevicesWithoutFix(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "A", HasFix: false},
		{DeviceID: "B", HasFix: true, Lat: 0, Lng: 0},
	}

	assert.Empty(t, s.Scan(devices))
}

func TestScanExcludesBaseStationsFromPairwiseScoring(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "base-1", HasFix: true, Lat: 0, Lng: 0, IsBaseStation: true},
		{DeviceID: "mobile-A", HasFix: true, Lat: 0, Lng: 0.00001}, // ~1.1m from base-1
	}

	assert.Empty(t, s.Scan(devices))
}

func TestScanExcludesBaseStationToBaseStationPairs(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "base-1", HasFix: true, Lat: 0, Lng: 0, IsBaseStation: true},
		{DeviceID: "base-2", HasFix: true, Lat: 0, Lng: 0.00001, IsBaseStation: true},
	}

	assert.Empty(t, s.Scan(devices))
}

func TestScanForDeviceFiltersToPairsContainingID(t *testing.T) {
	s := New(config.Default())
	devices := []devicestore.Device{
		{DeviceID: "A", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "B", HasFix: true, Lat: 0, Lng: 0.00001},
		{DeviceID: "C", HasFix: true, Lat: 50, Lng: 50},
	}

	events := s.ScanForDevice(devices, "C")
	assert.Empty(t, events)

	events = s.ScanForDevice(devices, "A")
	assert.Len(t, events, 1)
}

func TestScanNeverReturnsPairAtOrAboveWarningDistance(t *testing.T) {
	cfg := config.Default()
	s := New(cfg)
	devices := []devicestore.Device{
		{DeviceID: "A", HasFix: true, Lat: 0, Lng: 0},
		{DeviceID: "B", HasFix: true, Lat: 0, Lng: 0.0001},
		{DeviceID: "C", HasFix: true, Lat: 1, Lng: 1},
	}

	for _, e := range s.Scan(devices) {
		assert.Less(t, e.DistanceM, cfg.WarningDistanceMeters)
	}
}
