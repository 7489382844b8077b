// Package metrics defines the Prometheus collectors used by the service and
// a gin middleware that records request counts and latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ExtractionsTotal     *prometheus.CounterVec
	EstimationsTotal     *prometheus.CounterVec
	ModelCallDuration    *prometheus.HistogramVec
	CacheLookupsTotal    *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		ExtractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_extractions_total",
				Help: "Recipe extractions by result (ok or error kind).",
			},
			[]string{"result"},
		),
		EstimationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nutrition_estimations_total",
				Help: "Nutrition estimation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		ModelCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "model_call_duration_seconds",
				Help:    "Latency of calls to the extraction model by pipeline stage.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60},
			},
			[]string{"stage"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_cache_lookups_total",
				Help: "Fingerprint cache lookups by layer and result.",
			},
			[]string{"layer", "result"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_events_published_total",
				Help: "Recipe lifecycle events by type and status.",
			},
			[]string{"type", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ExtractionsTotal,
		m.EstimationsTotal,
		m.ModelCallDuration,
		m.CacheLookupsTotal,
		m.EventsPublishedTotal,
	)
	return m
}

// ObserveExtraction counts a finished primary extraction.
func (m *Metrics) ObserveExtraction(result string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(result).Inc()
}

// ObserveEstimation counts a nutrition estimation attempt.
func (m *Metrics) ObserveEstimation(outcome string) {
	if m == nil {
		return
	}
	m.EstimationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelCall records the latency of one model call.
func (m *Metrics) ObserveModelCall(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelCallDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveCacheLookup counts a cache lookup on the given layer.
func (m *Metrics) ObserveCacheLookup(layer, result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(layer, result).Inc()
}

// ObserveEvent counts a published or failed event.
func (m *Metrics) ObserveEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
