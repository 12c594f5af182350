package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dynamic tracks the runtime type cache.
type Dynamic struct {
	reg registration

	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	failures  prometheus.Counter
}

func NewDynamic(registerer prometheus.Registerer, namespace string) *Dynamic {
	m := &Dynamic{
		hits:      newCounter(namespace, "dynamic", "cache_hits_total", "Type lookups served from the cache"),
		misses:    newCounter(namespace, "dynamic", "cache_misses_total", "Type lookups that built a descriptor pool"),
		evictions: newCounter(namespace, "dynamic", "cache_evictions_total", "Types evicted from the cache"),
		failures:  newCounter(namespace, "dynamic", "resolve_failures_total", "Descriptors that could not be resolved"),
	}
	m.reg = newRegistration(registerer, m.hits, m.misses, m.evictions, m.failures)
	return m
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Dynamic) Register() error {
	if m == nil {
		return nil
	}
	return m.reg.register()
}

func (m *Dynamic) RecordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Dynamic) RecordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Dynamic) RecordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Dynamic) RecordFailure() {
	if m != nil {
		m.failures.Inc()
	}
}
