package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PacketsIngested.Inc()
	m.AlertsEmitted.WithLabelValues("PROXIMITY_WARNING").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}

	assert.True(t, names["navcore_packets_ingested_total"])
	assert.True(t, names["navcore_alerts_emitted_total"])
	assert.True(t, names["navcore_devices_active"])
}

func TestObserveScanRecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveScan(func() {})

	families, err := reg.Gather()
	require.NoError(t, err)

	var hist *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "navcore_proximity_scan_duration_seconds" {
			hist = f
		}
	}
	require.NotNil(t, hist)
	require.Len(t, hist.Metric, 1)
	assert.Equal(t, uint64(1), hist.Metric[0].GetHistogram().GetSampleCount())
}
