// Package config holds the thresholds, window sizes, TTLs, and RSSI model
// constants that every other navcore component is parameterized by (spec
// component C1). A single Config value is constructed once at startup and
// passed explicitly to every component — there is no package-level
// singleton (see DESIGN.md, "avoid ambient globals").
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the flat set of tunables for the ingestion/fusion/alerting
// pipeline. Every field has a safe default; all except the three scheduler
// intervals are overridable via environment variables (see Load).
type Config struct {
	Port int

	CollisionDistanceMeters     float64
	WarningDistanceMeters       float64
	MaxSafeSpeedMps             float64
	SensorConfidenceThreshold   float64

	SmoothingWindow int

	RSSIPathLossExponent float64
	RSSIMeasuredAt1m     float64
	MinBaseStations      int

	DeviceTTL    time.Duration
	DedupWindow  time.Duration

	// PruneInterval, PersistInterval and DedupSweepInterval govern the
	// background scheduler tasks in pkg/scheduler. Not part of the
	// original SAFETY/FUSION/INDOOR table in spec.md §6, but every such
	// interval needs a knob — 10s matches the "every ~10s" cadence spec.md
	// §4.3/§4.6 describe.
	PruneInterval      time.Duration
	PersistInterval    time.Duration
	DedupSweepInterval time.Duration

	SnapshotPath string

	// GoogleMapsAPIKey enables the optional outdoor GPS-assist fallback in
	// pkg/geo (see SPEC_FULL.md §4.1). Empty disables it.
	GoogleMapsAPIKey string
}

// Default returns the configuration described in spec.md §6's table.
func Default() *Config {
	return &Config{
		Port: 3000,

		CollisionDistanceMeters:   2.0,
		WarningDistanceMeters:     5.0,
		MaxSafeSpeedMps:           15.0,
		SensorConfidenceThreshold: 0.6,

		SmoothingWindow: 5,

		RSSIPathLossExponent: 2.0,
		RSSIMeasuredAt1m:     -40.0,
		MinBaseStations:      3,

		DeviceTTL:   30 * time.Second,
		DedupWindow: 3 * time.Second,

		PruneInterval:      10 * time.Second,
		PersistInterval:    10 * time.Second,
		DedupSweepInterval: 10 * time.Second,

		SnapshotPath: "data/info.json",
	}
}

// Load returns the default configuration with any recognized environment
// variable overrides applied.
func Load() *Config {
	c := Default()

	c.Port = envInt("PORT", c.Port)
	c.CollisionDistanceMeters = envFloat("SAFETY_COLLISION_DISTANCE_METERS", c.CollisionDistanceMeters)
	c.WarningDistanceMeters = envFloat("SAFETY_WARNING_DISTANCE_METERS", c.WarningDistanceMeters)
	c.MaxSafeSpeedMps = envFloat("SAFETY_MAX_SPEED_MS", c.MaxSafeSpeedMps)
	c.SensorConfidenceThreshold = envFloat("SAFETY_SENSOR_CONFIDENCE_THRESHOLD", c.SensorConfidenceThreshold)

	c.SmoothingWindow = envInt("FUSION_SMOOTHING_WINDOW", c.SmoothingWindow)

	c.RSSIPathLossExponent = envFloat("INDOOR_RSSI_PATH_LOSS_EXPONENT", c.RSSIPathLossExponent)
	c.RSSIMeasuredAt1m = envFloat("INDOOR_RSSI_MEASURED_AT_1M", c.RSSIMeasuredAt1m)
	c.MinBaseStations = envInt("INDOOR_MIN_BASE_STATIONS", c.MinBaseStations)

	c.DeviceTTL = envDuration("DEVICE_TTL_MS", c.DeviceTTL)
	c.DedupWindow = envDuration("DEDUP_WINDOW_MS", c.DedupWindow)

	if v := os.Getenv("SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		c.GoogleMapsAPIKey = v
	}

	return c
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// envDuration reads a millisecond integer from the environment, matching
// the *_MS naming in spec.md's config table.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
