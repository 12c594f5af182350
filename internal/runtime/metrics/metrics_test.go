package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value sums the samples of a counter or gauge family whose labels include
// every given label value.
func value(t *testing.T, reg *prometheus.Registry, name string, labelValues ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, want := range labelValues {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetValue() == want {
						found = true
					}
				}
				if !found {
					continue metric
				}
			}
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}

func TestPubSub_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPubSub(reg, "")
	require.NoError(t, m.Register())

	m.RecordSent("imu", 128)
	m.RecordSent("imu", 256)
	m.RecordNoSubscribers("imu")
	m.RecordDelivered("imu")
	m.RecordDeserializeError("imu")
	m.RecordRejectedProducer("imu")
	m.RecordSendFailure("imu")

	tests := []struct {
		name string
		want float64
	}{
		{"protomeas_pubsub_sent_total", 2},
		{"protomeas_pubsub_no_subscribers_total", 1},
		{"protomeas_pubsub_delivered_total", 1},
		{"protomeas_pubsub_deserialize_errors_total", 1},
		{"protomeas_pubsub_rejected_producers_total", 1},
		{"protomeas_pubsub_send_failures_total", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, value(t, reg, tt.name, "imu"))
		})
	}
}

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()

	m := NewDynamic(reg, "custom")
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// A second instance with the same names collides but is tolerated.
	other := NewDynamic(reg, "custom")
	require.NoError(t, other.Register())

	m.RecordHit()
	m.RecordMiss()
	m.RecordMiss()
	m.RecordEviction()
	m.RecordFailure()

	assert.Equal(t, 1.0, value(t, reg, "custom_dynamic_cache_hits_total"))
	assert.Equal(t, 2.0, value(t, reg, "custom_dynamic_cache_misses_total"))
	assert.Equal(t, 1.0, value(t, reg, "custom_dynamic_cache_evictions_total"))
	assert.Equal(t, 1.0, value(t, reg, "custom_dynamic_resolve_failures_total"))
}

func TestMeasurement_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMeasurement(reg, "")
	require.NoError(t, m.Register())

	m.RecordEntry("imu", 10)
	m.RecordEntry("imu", 5)
	m.SetFiles("run", 1)
	m.RecordSplit("run", 2)

	assert.Equal(t, 2.0, value(t, reg, "protomeas_measurement_entries_total", "imu"))
	assert.Equal(t, 15.0, value(t, reg, "protomeas_measurement_bytes_total", "imu"))
	assert.Equal(t, 1.0, value(t, reg, "protomeas_measurement_file_splits_total"))
	assert.Equal(t, 2.0, value(t, reg, "protomeas_measurement_files", "run"))
}

func TestNilReceivers(t *testing.T) {
	var p *PubSub
	var d *Dynamic
	var m *Measurement

	assert.NotPanics(t, func() {
		require.NoError(t, p.Register())
		p.RecordSent("t", 1)
		p.RecordDelivered("t")
		require.NoError(t, d.Register())
		d.RecordHit()
		d.RecordEviction()
		require.NoError(t, m.Register())
		m.RecordEntry("c", 1)
		m.RecordSplit("b", 2)
	})
}
