// Package metrics holds the Prometheus collectors of the query engine.
//
// A nil *Metrics is valid and records nothing, so library packages can take
// one through their options without requiring a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	CacheEvictions  *prometheus.CounterVec
	Compilations    prometheus.Counter
	Plans           *prometheus.CounterVec
	PersistWrites   prometheus.Counter
	PersistDiscards *prometheus.CounterVec
	PersistErrors   prometheus.Counter
}

// New creates all metrics and registers them with reg. A nil reg leaves the
// collectors unregistered.
func New(reg prometheus.Registerer) *Metrics {
	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mango_cache_hits_total",
		Help: "Query cache hits per partition",
	}, []string{"partition"})

	cacheMisses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mango_cache_misses_total",
		Help: "Query cache misses per partition",
	}, []string{"partition"})

	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mango_cache_evictions_total",
		Help: "Query cache entries expired per partition",
	}, []string{"partition"})

	compilations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mango_compilations_total",
		Help: "Selector templates compiled into predicates",
	})

	plans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mango_plans_total",
		Help: "Planned queries by pushdown strategy",
	}, []string{"strategy"})

	persistWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mango_persist_writes_total",
		Help: "Persisted template blob writes",
	})

	persistDiscards := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mango_persist_discards_total",
		Help: "Persisted template blobs discarded on load",
	}, []string{"reason"})

	persistErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mango_persist_errors_total",
		Help: "Failed reads or writes of the persisted template blob",
	})

	if reg != nil {
		reg.MustRegister(cacheHits, cacheMisses, cacheEvictions, compilations,
			plans, persistWrites, persistDiscards, persistErrors)
	}

	return &Metrics{
		CacheHits:       cacheHits,
		CacheMisses:     cacheMisses,
		CacheEvictions:  cacheEvictions,
		Compilations:    compilations,
		Plans:           plans,
		PersistWrites:   persistWrites,
		PersistDiscards: persistDiscards,
		PersistErrors:   persistErrors,
	}
}

// CacheHit counts a hit in partition.
func (m *Metrics) CacheHit(partition string) {
	if m != nil {
		m.CacheHits.WithLabelValues(partition).Inc()
	}
}

// CacheMiss counts a miss in partition.
func (m *Metrics) CacheMiss(partition string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(partition).Inc()
	}
}

// CacheEviction counts an expired entry in partition.
func (m *Metrics) CacheEviction(partition string) {
	if m != nil {
		m.CacheEvictions.WithLabelValues(partition).Inc()
	}
}

func (m *Metrics) Compiled() {
	if m != nil {
		m.Compilations.Inc()
	}
}

func (m *Metrics) Planned(strategy string) {
	if m != nil {
		m.Plans.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) PersistWrite() {
	if m != nil {
		m.PersistWrites.Inc()
	}
}

// PersistDiscard counts a dropped blob; reason is "version" or "corrupt".
func (m *Metrics) PersistDiscard(reason string) {
	if m != nil {
		m.PersistDiscards.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PersistError() {
	if m != nil {
		m.PersistErrors.Inc()
	}
}
