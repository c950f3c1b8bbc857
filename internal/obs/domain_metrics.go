package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ProviderRequestTotal counts upstream tracking requests by outcome.
	ProviderRequestTotal *prometheus.CounterVec
	// ProviderRequestLatency records upstream request latency in milliseconds.
	ProviderRequestLatency *prometheus.HistogramVec
	// AggregationTotal counts aggregation runs by final outcome.
	AggregationTotal *prometheus.CounterVec
	// AggregationProvidersAttempted records how many providers one run queried.
	AggregationProvidersAttempted prometheus.Histogram
	// CacheLookupTotal counts result cache lookups by scope and outcome.
	CacheLookupTotal *prometheus.CounterVec
	// ProviderThrottledTotal counts provider calls deferred by a rate limit window.
	ProviderThrottledTotal *prometheus.CounterVec
	// RefreshTaskTotal counts background refresh task outcomes.
	RefreshTaskTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ProviderRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_request_total",
			Help:      "Count of upstream provider tracking requests by outcome.",
		}, []string{"provider", "result"})
		ProviderRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_ms",
			Help:      "Latency of upstream provider requests in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider"})
		AggregationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_total",
			Help:      "Count of aggregation runs by final outcome.",
		}, []string{"outcome"})
		AggregationProvidersAttempted = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_providers_attempted",
			Help:      "Number of providers queried during one aggregation run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		})
		CacheLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookup_total",
			Help:      "Count of result cache lookups by scope and outcome.",
		}, []string{"scope", "result"})
		ProviderThrottledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_throttled_total",
			Help:      "Count of provider calls skipped because a budget window was exhausted.",
		}, []string{"provider", "window"})
		RefreshTaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_task_total",
			Help:      "Count of background refresh task outcomes.",
		}, []string{"result"})

		mustRegisterCollector(reg, ProviderRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ProviderRequestTotal = v
			}
		})
		mustRegisterCollector(reg, ProviderRequestLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ProviderRequestLatency = v
			}
		})
		mustRegisterCollector(reg, AggregationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AggregationTotal = v
			}
		})
		mustRegisterCollector(reg, AggregationProvidersAttempted, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				AggregationProvidersAttempted = v
			}
		})
		mustRegisterCollector(reg, CacheLookupTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CacheLookupTotal = v
			}
		})
		mustRegisterCollector(reg, ProviderThrottledTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ProviderThrottledTotal = v
			}
		})
		mustRegisterCollector(reg, RefreshTaskTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RefreshTaskTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
