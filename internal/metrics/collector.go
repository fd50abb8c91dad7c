// Package metrics exposes Prometheus instruments for extraction outcomes.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records pipeline outcomes.
type Collector struct {
	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	tierFailures       *prometheus.CounterVec
	warmRefreshes      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the instruments on reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.extractionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Completed extractions by the tier that produced the result",
		},
		[]string{"source"},
	)

	c.extractionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Extraction wall time by result source",
			Buckets:   []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 20},
		},
		[]string{"source"},
	)

	c.tierFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_failures_total",
			Help:      "Failures per extraction tier",
		},
		[]string{"tier"},
	)

	c.warmRefreshes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warm_refresh_total",
			Help:      "Background warm refreshes by outcome",
		},
		[]string{"outcome"},
	)

	c.httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	return c
}

func (c *Collector) RecordExtraction(source string, d time.Duration) {
	if c == nil {
		return
	}
	c.extractionsTotal.WithLabelValues(source).Inc()
	c.extractionDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (c *Collector) RecordTierFailure(tier string) {
	if c == nil {
		return
	}
	c.tierFailures.WithLabelValues(tier).Inc()
}

func (c *Collector) RecordWarmRefresh(outcome string) {
	if c == nil {
		return
	}
	c.warmRefreshes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
