package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal conta decisões do gate por política e resultado
	// (allowed, denied, degraded).
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total number of rate limit decisions by policy and outcome",
		},
		[]string{"policy", "outcome"},
	)

	// StoreFailuresTotal conta falhas do store de contadores por operação.
	StoreFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_store_failures_total",
			Help: "Total number of counter store failures by operation",
		},
		[]string{"op"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_store_duration_seconds",
			Help:    "Counter store call latency in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"op"},
	)

	// BreakerState reflete o estado do circuit breaker do store:
	// 0 = closed, 1 = half-open, 2 = open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratelimit_store_breaker_state",
			Help: "Counter store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
