package perfmon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports samples as a query duration histogram and
// hit/miss/error counters labeled by family and strategy.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// NewPrometheusObserver creates the collectors under namespace and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"family", "strategy"}

	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_query_duration_seconds",
			Help:      "Latency of page requests, cache hits included",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, labels),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_hits_total",
			Help:      "Total number of page requests served from cache",
		}, labels),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_cache_misses_total",
			Help:      "Total number of page requests served by the executor",
		}, labels),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_errors_total",
			Help:      "Total number of failed page requests",
		}, labels),
	}

	for _, c := range []prometheus.Collector{o.duration, o.hits, o.misses, o.errors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Observe implements Observer.
func (o *PrometheusObserver) Observe(family string, s Sample) {
	labels := prometheus.Labels{"family": family, "strategy": s.Strategy}

	o.duration.With(labels).Observe(s.QueryTime.Seconds())
	switch {
	case s.Err != nil:
		o.errors.With(labels).Inc()
	case s.CacheHit:
		o.hits.With(labels).Inc()
	default:
		o.misses.With(labels).Inc()
	}
}
