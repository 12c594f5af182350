// Package metrics holds the Prometheus collectors for publishers, subscribers,
// the dynamic type resolver and measurement writers.
//
// Every recorder method is safe to call on a nil receiver so components can
// run without metrics wired in.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector unless overridden.
const DefaultNamespace = "protomeas"

type registration struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool
	collectors []prometheus.Collector
}

func newRegistration(registerer prometheus.Registerer, collectors ...prometheus.Collector) registration {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return registration{registerer: registerer, collectors: collectors}
}

// register registers the collectors. Safe to call multiple times.
func (r *registration) register() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return nil
	}

	for _, c := range r.collectors {
		if err := r.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	r.registered = true
	return nil
}

func namespaceOr(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

func newCounterVec(ns, subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceOr(ns),
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounter(ns, subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespaceOr(ns),
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
	)
}

func newGaugeVec(ns, subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespaceOr(ns),
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(ns, subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceOr(ns),
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}
