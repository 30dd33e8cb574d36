package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is the metric namespace used when none is given.
const DefaultNamespace = "corsrelay"

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	responseSize      *prometheus.HistogramVec
	activeRequests    prometheus.Gauge
	upstreamRequests  *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	fallbackResponses *prometheus.CounterVec
	rewritesTotal     *prometheus.CounterVec
	panicsTotal       prometheus.Counter
	circuitBreaker    prometheus.Gauge
	buildInfo         *prometheus.GaugeVec
	startTime         prometheus.Gauge
	registry          *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"method", "status"},
	)

	m.responseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of requests currently being handled",
		},
	)

	m.upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the upstream service",
		},
		[]string{"method", "status"},
	)

	m.upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "duration_seconds",
			Help:      "Upstream round trip duration in seconds",
			Buckets: []float64{
				.005, .01, .025, .05, .1,
				.25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"method"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of mapped relay errors by kind",
		},
		[]string{"kind"},
	)

	m.fallbackResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "responses_total",
			Help:      "Total number of responses served from the static dataset",
		},
		[]string{"source"},
	)

	m.rewritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_rewrites_total",
			Help:      "Total number of path translations by matching rule",
		},
		[]string{"rule"},
	)

	m.panicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Total number of recovered handler panics",
		},
	)

	m.circuitBreaker = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the relay in unix seconds",
		},
	)
	m.startTime.SetToCurrentTime()

	m.registerCollectors()

	return m
}

func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.responseSize,
		m.activeRequests,
		m.upstreamRequests,
		m.upstreamDuration,
		m.errorsTotal,
		m.fallbackResponses,
		m.rewritesTotal,
		m.panicsTotal,
		m.circuitBreaker,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordRequest records a completed inbound request.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration, respSize int64) {
	statusStr := strconv.Itoa(status)

	m.requestsTotal.WithLabelValues(method, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, statusStr).Observe(duration.Seconds())
	m.responseSize.WithLabelValues(method).Observe(float64(respSize))
}

// IncActiveRequests increments the in-flight request gauge.
func (m *Metrics) IncActiveRequests() {
	m.activeRequests.Inc()
}

// DecActiveRequests decrements the in-flight request gauge.
func (m *Metrics) DecActiveRequests() {
	m.activeRequests.Dec()
}

// RecordUpstream records one upstream round trip. A status of zero means
// the upstream could not be reached.
func (m *Metrics) RecordUpstream(method string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "unreachable"
	}
	m.upstreamRequests.WithLabelValues(method, statusStr).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records a mapped relay error.
func (m *Metrics) RecordError(kind string) {
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordFallback records a response served from the static dataset.
func (m *Metrics) RecordFallback(source string) {
	m.fallbackResponses.WithLabelValues(source).Inc()
}

// RecordRewrite records which translation rule matched a path.
func (m *Metrics) RecordRewrite(rule string) {
	m.rewritesTotal.WithLabelValues(rule).Inc()
}

// RecordPanic records a recovered panic.
func (m *Metrics) RecordPanic() {
	m.panicsTotal.Inc()
}

// SetCircuitBreakerState sets the upstream circuit breaker state.
func (m *Metrics) SetCircuitBreakerState(state int) {
	m.circuitBreaker.Set(float64(state))
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
