// Package pubsub binds a codec to a topic of a byte-oriented transport.
//
// A Publisher serializes typed messages and hands the bytes to the
// transport. A Subscriber decodes every delivered payload against the data
// type its producer advertised, passes successful results to the data
// callback and routes failures to the error callback without ending the
// subscription.
package pubsub

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/protomeas/internal/runtime/datatype"
	"github.com/drblury/protomeas/internal/runtime/logging"
	"github.com/drblury/protomeas/internal/runtime/metrics"
)

const tracerName = "github.com/drblury/protomeas/pubsub"

// Option configures a Publisher or Subscriber.
type Option func(*options)

type options struct {
	log            logging.ServiceLogger
	metrics        *metrics.PubSub
	tracerProvider trace.TracerProvider
}

// WithLogger sets the logger.
func WithLogger(log logging.ServiceLogger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records send and delivery outcomes.
func WithMetrics(m *metrics.PubSub) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func newOptions(component string, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.Component(o.log, component)
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

func (o options) tracer() trace.Tracer {
	return o.tracerProvider.Tracer(tracerName)
}

func spanAttributes(topic string, dt datatype.Descriptor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.destination.name", topic),
		attribute.String("protomeas.type.name", dt.Name),
		attribute.String("protomeas.type.encoding", dt.Encoding),
	}
}
