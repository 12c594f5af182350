package metrics

import "github.com/prometheus/client_golang/prometheus"

// Measurement tracks writer throughput and file rollover.
type Measurement struct {
	reg registration

	entriesTotal *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
	splitsTotal  prometheus.Counter
	openFiles    *prometheus.GaugeVec
}

func NewMeasurement(registerer prometheus.Registerer, namespace string) *Measurement {
	m := &Measurement{
		entriesTotal: newCounterVec(namespace, "measurement", "entries_total", "Entries appended per channel", []string{"channel"}),
		bytesTotal:   newCounterVec(namespace, "measurement", "bytes_total", "Payload bytes appended per channel", []string{"channel"}),
		splitsTotal:  newCounter(namespace, "measurement", "file_splits_total", "Times a writer rolled over to a new file"),
		openFiles:    newGaugeVec(namespace, "measurement", "files", "Physical files of the current measurement", []string{"base"}),
	}
	m.reg = newRegistration(registerer, m.entriesTotal, m.bytesTotal, m.splitsTotal, m.openFiles)
	return m
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Measurement) Register() error {
	if m == nil {
		return nil
	}
	return m.reg.register()
}

func (m *Measurement) RecordEntry(channel string, size int) {
	if m == nil {
		return
	}
	m.entriesTotal.WithLabelValues(channel).Inc()
	m.bytesTotal.WithLabelValues(channel).Add(float64(size))
}

func (m *Measurement) RecordSplit(base string, files int) {
	if m == nil {
		return
	}
	m.splitsTotal.Inc()
	m.openFiles.WithLabelValues(base).Set(float64(files))
}

func (m *Measurement) SetFiles(base string, files int) {
	if m == nil {
		return
	}
	m.openFiles.WithLabelValues(base).Set(float64(files))
}
