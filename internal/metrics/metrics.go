// Package metrics exposes the prometheus collectors for mining, queries and model
// lifecycle events.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cxr-association-engine/internal/domain"
)

const namespace = "cxr"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	miningDuration prometheus.Histogram
	itemsets       prometheus.Gauge
	rules          prometheus.Gauge
	transactions   prometheus.Gauge
	queries        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	retrains       *prometheus.CounterVec
	modelSource    *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry together with the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		miningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mining_duration_seconds",
			Help:      "Time spent mining frequent itemsets and rules.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		itemsets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frequent_itemsets",
			Help:      "Frequent itemsets in the served rule store.",
		}),
		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "association_rules",
			Help:      "Association rules in the served rule store.",
		}),
		transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_transactions",
			Help:      "Transactions mined to build the served rule store.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Rule queries by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_lookups_total",
			Help:      "Query cache lookups by result.",
		}, []string{"result"}),
		retrains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrains_total",
			Help:      "Retrain attempts by outcome code.",
		}, []string{"outcome"}),
		modelSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_source",
			Help:      "Set to 1 for the origin of the served rule store.",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.miningDuration,
		m.itemsets,
		m.rules,
		m.transactions,
		m.queries,
		m.cacheLookups,
		m.retrains,
		m.modelSource,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMining records a finished mining run.
func (m *Metrics) ObserveMining(d time.Duration) {
	if m == nil {
		return
	}
	m.miningDuration.Observe(d.Seconds())
}

// SetModel publishes the size and origin of the served rule store.
func (m *Metrics) SetModel(info domain.ModelInfo) {
	if m == nil {
		return
	}
	m.itemsets.Set(float64(info.Itemsets))
	m.rules.Set(float64(info.Rules))
	m.transactions.Set(float64(info.Transactions))
	for _, source := range []domain.ModelSource{domain.SourceArtifact, domain.SourceRetrain, domain.SourceFallback, domain.SourceDegraded} {
		value := 0.0
		if source == info.Source {
			value = 1
		}
		m.modelSource.WithLabelValues(string(source)).Set(value)
	}
}

// IncQuery counts a query by outcome ("ok" or an error code).
func (m *Metrics) IncQuery(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

// IncCache counts a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// IncRetrain counts a retrain attempt by outcome ("ok" or an error code).
func (m *Metrics) IncRetrain(outcome string) {
	if m == nil {
		return
	}
	m.retrains.WithLabelValues(outcome).Inc()
}
