// Package metrics exposes Prometheus collectors for the ingestion
// pipeline: device store size, proximity scan duration, and alert counts
// by kind. Grounded on the Metrics-struct-of-named-collectors shape used
// for eBPF metrics in the pack (internal/ebpf/metrics/prometheus.go),
// adapted from packet/byte counters to this domain's device/alert/scan
// counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector navcore registers.
type Metrics struct {
	DevicesActive    prometheus.Gauge
	BaseStations     prometheus.Gauge
	PacketsIngested  prometheus.Counter
	PacketsDropped   prometheus.Counter
	ScanDuration     prometheus.Histogram
	AlertsEmitted    *prometheus.CounterVec
	DevicesPruned    prometheus.Counter
	SnapshotFailures prometheus.Counter
}

// New creates a Metrics set and registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DevicesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "navcore_devices_active",
			Help: "Number of devices currently present in the device store.",
		}),
		BaseStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "navcore_base_stations",
			Help: "Number of registered base stations.",
		}),
		PacketsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navcore_packets_ingested_total",
			Help: "Total number of sensor packets accepted by the dispatcher.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navcore_packets_dropped_total",
			Help: "Total number of malformed sensor packets dropped.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "navcore_proximity_scan_duration_seconds",
			Help:    "Duration of a single proximity scan.",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navcore_alerts_emitted_total",
			Help: "Total number of alerts emitted, by kind.",
		}, []string{"kind"}),
		DevicesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navcore_devices_pruned_total",
			Help: "Total number of devices removed by TTL pruning.",
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navcore_snapshot_failures_total",
			Help: "Total number of failed snapshot persistence attempts.",
		}),
	}

	reg.MustRegister(
		m.DevicesActive,
		m.BaseStations,
		m.PacketsIngested,
		m.PacketsDropped,
		m.ScanDuration,
		m.AlertsEmitted,
		m.DevicesPruned,
		m.SnapshotFailures,
	)

	return m
}

// ObserveScan times a single proximity scan via fn and records its
// duration.
func (m *Metrics) ObserveScan(fn func()) {
	start := time.Now()
	fn()
	m.ScanDuration.Observe(time.Since(start).Seconds())
}
