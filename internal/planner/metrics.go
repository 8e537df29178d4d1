package planner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// planDuration tracks end-to-end plan generation time.
	planDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_generation_duration_seconds",
		Help:    "Time taken to generate a plan response",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// planRequests counts plan requests by outcome.
	planRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_requests_total",
		Help: "Total plan requests by outcome",
	}, []string{"outcome"})

	// basketSize tracks the distribution of basket sizes.
	basketSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_basket_items_count",
		Help:    "Number of items in plan requests",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	// coverageRatio tracks the coverage of the best returned plan.
	coverageRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_best_coverage_ratio",
		Help:    "Coverage ratio of the best returned plan",
		Buckets: []float64{0.2, 0.4, 0.6, 0.8, 0.9, 1},
	})

	// candidateCount tracks how many stores survived candidate resolution.
	candidateCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planner_candidate_stores_count",
		Help:    "Number of candidate stores considered per request",
		Buckets: []float64{1, 3, 5, 10, 20, 50, 100},
	})
)

func recordPlanOutcome(outcome string, elapsed time.Duration) {
	planRequests.WithLabelValues(outcome).Inc()
	planDuration.Observe(elapsed.Seconds())
}
