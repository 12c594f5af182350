package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PubSub tracks typed publish and delivery outcomes per topic.
type PubSub struct {
	reg registration

	sentTotal         *prometheus.CounterVec
	sendFailures      *prometheus.CounterVec
	noSubscribers     *prometheus.CounterVec
	deliveredTotal    *prometheus.CounterVec
	deserializeErrors *prometheus.CounterVec
	rejectedProducers *prometheus.CounterVec
	payloadBytes      *prometheus.HistogramVec
}

// NewPubSub creates the collectors. A nil registerer falls back to the
// default Prometheus registry.
func NewPubSub(registerer prometheus.Registerer, namespace string) *PubSub {
	m := &PubSub{
		sentTotal:         newCounterVec(namespace, "pubsub", "sent_total", "Messages handed to the transport", []string{"topic"}),
		sendFailures:      newCounterVec(namespace, "pubsub", "send_failures_total", "Messages that failed to serialize or publish", []string{"topic"}),
		noSubscribers:     newCounterVec(namespace, "pubsub", "no_subscribers_total", "Sends skipped because nobody listened", []string{"topic"}),
		deliveredTotal:    newCounterVec(namespace, "pubsub", "delivered_total", "Messages deserialized and handed to the data callback", []string{"topic"}),
		deserializeErrors: newCounterVec(namespace, "pubsub", "deserialize_errors_total", "Messages routed to the error path", []string{"topic"}),
		rejectedProducers: newCounterVec(namespace, "pubsub", "rejected_producers_total", "Producers whose advertised type a subscriber refused", []string{"topic"}),
		payloadBytes: newHistogramVec(namespace, "pubsub", "payload_bytes", "Serialized payload size",
			prometheus.ExponentialBuckets(64, 4, 8), []string{"topic"}),
	}
	m.reg = newRegistration(registerer,
		m.sentTotal,
		m.sendFailures,
		m.noSubscribers,
		m.deliveredTotal,
		m.deserializeErrors,
		m.rejectedProducers,
		m.payloadBytes,
	)
	return m
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PubSub) Register() error {
	if m == nil {
		return nil
	}
	return m.reg.register()
}

func (m *PubSub) RecordSent(topic string, size int) {
	if m == nil {
		return
	}
	m.sentTotal.WithLabelValues(topic).Inc()
	m.payloadBytes.WithLabelValues(topic).Observe(float64(size))
}

func (m *PubSub) RecordSendFailure(topic string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(topic).Inc()
}

func (m *PubSub) RecordNoSubscribers(topic string) {
	if m == nil {
		return
	}
	m.noSubscribers.WithLabelValues(topic).Inc()
}

func (m *PubSub) RecordDelivered(topic string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(topic).Inc()
}

func (m *PubSub) RecordDeserializeError(topic string) {
	if m == nil {
		return
	}
	m.deserializeErrors.WithLabelValues(topic).Inc()
}

func (m *PubSub) RecordRejectedProducer(topic string) {
	if m == nil {
		return
	}
	m.rejectedProducers.WithLabelValues(topic).Inc()
}
