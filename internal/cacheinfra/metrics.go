package cacheinfra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used by Metrics.
const (
	ResultHit       = "hit"
	ResultMiss      = "miss"
	ResultError     = "error"
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultDiscarded = "discarded"

	SourceAhead = "ahead"
	SourceBatch = "batch"

	TriggerManual = "manual"
	TriggerSweep  = "sweep"
)

// Metrics holds the Prometheus collectors shared by the store and the
// namespace handlers. A nil *Metrics records nothing.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	Evictions     *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	TrackedKeys   *prometheus.GaugeVec
}

// NewMetrics creates the collectors under the given metric namespace and
// registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Cache lookups by cache namespace and result",
		}, []string{"namespace", "result"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Background refreshes by source (ahead, batch) and result",
		}, []string{"source", "result"}),
		Evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Keys evicted because a namespace exceeded its tracked key bound",
		}, []string{"namespace"}),
		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "Full namespace invalidations by trigger",
		}, []string{"namespace", "trigger"}),
		TrackedKeys: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_keys",
			Help:      "Keys currently tracked by a namespace",
		}, []string{"namespace"}),
	}
}

func (m *Metrics) Lookup(namespace, result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(namespace, result).Inc()
}

func (m *Metrics) Refresh(source, result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(source, result).Inc()
}

func (m *Metrics) Evict(namespace string) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(namespace).Inc()
}

func (m *Metrics) Invalidate(namespace, trigger string) {
	if m == nil {
		return
	}
	m.Invalidations.WithLabelValues(namespace, trigger).Inc()
}

func (m *Metrics) Tracked(namespace string, n int) {
	if m == nil {
		return
	}
	m.TrackedKeys.WithLabelValues(namespace).Set(float64(n))
}
