// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by route, method and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ForumOperationsTotal counts forum writes by operation and outcome
	ForumOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_operations_total",
			Help: "Total number of forum operations",
		},
		[]string{"op", "result"},
	)

	// ModerationRejectionsTotal counts content rejected by the moderation filter
	ModerationRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_rejections_total",
			Help: "Total number of moderation rejections",
		},
		[]string{"kind"},
	)

	// RateLimitedTotal counts requests rejected by per-route limits
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of requests rejected by rate limits",
		},
		[]string{"route"},
	)

	// MediaUploadBytes records accepted upload sizes
	MediaUploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_upload_bytes",
			Help:    "Size of accepted media uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 11),
		},
		[]string{"mime"},
	)

	// OutboundChecksTotal counts calls to external services
	OutboundChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_checks_total",
			Help: "Total number of outbound checks by target and result",
		},
		[]string{"target", "result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordForumOp records the outcome of a forum operation
func RecordForumOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ForumOperationsTotal.WithLabelValues(op, result).Inc()
}

// GinMiddleware records request counts and latency
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
