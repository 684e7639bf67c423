// Package metrics exposes the Prometheus collectors for pdfdesk. A nil
// *Metrics is valid and records nothing, so packages can take one
// unconditionally and tests can pass nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfdesk"

type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	objectURLsActive  prometheus.Gauge
	sessionsActive    prometheus.Gauge
	aiRequestsTotal   *prometheus.CounterVec
	uploadsRejected   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "operations_total",
			Help:      "Document operations by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "operation_duration_seconds",
			Help:      "Document operation duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)
	objectURLsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "objurl",
			Name:      "active",
			Help:      "Object URLs created and not yet revoked.",
		},
	)
	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "sessions_active",
			Help:      "Open workspace sessions.",
		},
	)
	aiRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "Generative API calls by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	uploadsRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "rejected_total",
			Help:      "Files rejected by the validator, by category.",
		},
		[]string{"category"},
	)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestTotal,
		requestDuration,
		operationsTotal,
		operationDuration,
		objectURLsActive,
		sessionsActive,
		aiRequestsTotal,
		uploadsRejected,
	)

	return &Metrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		objectURLsActive:  objectURLsActive,
		sessionsActive:    sessionsActive,
		aiRequestsTotal:   aiRequestsTotal,
		uploadsRejected:   uploadsRejected,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by matched route, so path
// parameters do not blow up label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveOperation records one finished workspace run.
func (m *Metrics) ObserveOperation(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operationsTotal.WithLabelValues(tool, outcome).Inc()
	m.operationDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObjectURLCreated() {
	if m == nil {
		return
	}
	m.objectURLsActive.Inc()
}

func (m *Metrics) ObjectURLRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.objectURLsActive.Sub(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) ObserveAI(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.aiRequestsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) UploadsRejected(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadsRejected.WithLabelValues(category).Add(float64(n))
}
