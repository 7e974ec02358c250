// Package metrics 定义 IMBotChat 的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 生成请求的结果标签。
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusUnavailable = "unavailable"
)

// Generation Metrics
var (
	// GenerateRequestsTotal tracks model calls by model name and outcome
	GenerateRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imbotchat_generate_requests_total",
			Help: "Total generation requests by model and status",
		},
		[]string{"model", "status"},
	)

	// GenerateDuration tracks model call latency in seconds
	GenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imbotchat_generate_duration_seconds",
			Help:    "Model generation duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// CircuitBreakerState tracks current breaker state per model (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imbotchat_circuit_breaker_state",
			Help: "Current circuit breaker state per model (0=closed, 1=half-open, 2=open)",
		},
		[]string{"model"},
	)
)

// Session Metrics
var (
	// SessionsActive tracks sessions held by the in-memory store
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imbotchat_sessions_active",
			Help: "Number of sessions held in memory",
		},
	)
)
