package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vkm_recommender_requests_total",
		Help: "Recommendation service calls by outcome.",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vkm_recommender_request_duration_seconds",
		Help:    "Latency of recommendation service calls, fallbacks included.",
		Buckets: prometheus.DefBuckets,
	})

	// 0 closed, 1 half-open, 2 open
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vkm_recommender_breaker_state",
		Help: "Circuit breaker state of the recommendation client.",
	}, []string{"breaker"})
)
