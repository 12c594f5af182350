package transport

import (
	wmmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"

	"github.com/drblury/protomeas/internal/runtime/logging"
	bus "github.com/drblury/protomeas/transport"
)

// instrument decorates the backend when backend metrics are requested. A
// backend that cannot be decorated is used as is.
func instrument(backend bus.Transport, caps bus.Capabilities, o options) bus.Transport {
	if o.backendRegisterer == nil {
		return backend
	}

	namespace := o.backendNamespace
	if namespace == "" {
		namespace = "protomeas"
	}
	builder := wmmetrics.NewPrometheusMetricsBuilder(o.backendRegisterer, namespace, caps.Name)

	pub, err := builder.DecoratePublisher(backend.Publisher)
	if err != nil {
		o.log.Error("Backend metrics disabled", err, nil)
		return backend
	}
	sub, err := builder.DecorateSubscriber(backend.Subscriber)
	if err != nil {
		o.log.Error("Backend metrics disabled", err, nil)
		return backend
	}
	o.log.Debug("Backend metrics enabled", logging.LogFields{"namespace": namespace})
	return bus.Transport{Publisher: pub, Subscriber: sub}
}
