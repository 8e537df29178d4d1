package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits per cache name.
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilience_cache_hits_total",
		Help: "Total number of cache hits by cache",
	}, []string{"cache"})

	// cacheMisses tracks cache misses per cache name.
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilience_cache_misses_total",
		Help: "Total number of cache misses by cache",
	}, []string{"cache"})

	// breakerState exposes the current breaker state per provider
	// (0 = closed, 1 = open, 2 = half-open).
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resilience_circuit_breaker_state",
		Help: "Circuit breaker state by provider (0=closed, 1=open, 2=half-open)",
	}, []string{"provider"})

	// providerCalls tracks provider call outcomes.
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilience_provider_calls_total",
		Help: "Total provider calls by provider and outcome",
	}, []string{"provider", "outcome"})

	// providerLatency tracks provider call latency.
	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resilience_provider_call_duration_seconds",
		Help:    "Provider call latency by provider",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider"})

	// budgetUsed exposes the monthly call budget usage.
	budgetUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilience_call_budget_used",
		Help: "Metered provider calls used this month",
	})

	// budgetLimit exposes the configured monthly call budget cap.
	budgetLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilience_call_budget_limit",
		Help: "Configured monthly call budget cap",
	})
)

func recordCacheHit(cache string) {
	cacheHits.WithLabelValues(cache).Inc()
}

func recordCacheMiss(cache string) {
	cacheMisses.WithLabelValues(cache).Inc()
}

func recordBreakerState(provider string, state BreakerState) {
	breakerState.WithLabelValues(provider).Set(float64(state))
}

func recordBudgetUsage(used, limit int) {
	budgetUsed.Set(float64(used))
	budgetLimit.Set(float64(limit))
}

// RecordProviderCall records a provider call outcome and latency for metrics.
func RecordProviderCall(provider, outcome string, elapsed time.Duration) {
	providerCalls.WithLabelValues(provider, outcome).Inc()
	providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}
