// Package metrics exposes Prometheus instruments for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matcha"

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics owns a private registry so tests can build isolated instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	evaluations       *prometheus.CounterVec
	evaluationLatency prometheus.Histogram
	ruleMutations     *prometheus.CounterVec
	estimates         *prometheus.CounterVec
	estimateLatency   prometheus.Histogram
	estimateOptions   prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

// New registers every instrument plus the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_evaluations_total",
			Help:      "Compliance evaluations by resulting level.",
		}, []string{"level"}),
		evaluationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compliance_evaluation_duration_seconds",
			Help:      "Duration of compliance evaluations including the rule query.",
			Buckets:   latencyBuckets,
		}),
		ruleMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_rule_mutations_total",
			Help:      "Compliance rule writes by action.",
		}, []string{"action"}),
		estimates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_estimates_total",
			Help:      "Shipping estimate requests by service level and outcome.",
		}, []string{"service_level", "outcome"}),
		estimateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shipping_estimate_duration_seconds",
			Help:      "Duration of carrier fan-out.",
			Buckets:   latencyBuckets,
		}),
		estimateOptions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shipping_estimate_options",
			Help:      "Number of carrier options returned per estimate.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8},
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   latencyBuckets,
		}, []string{"route", "method"}),
	}
}

// ObserveEvaluation records a completed evaluation.
func (m *Metrics) ObserveEvaluation(level string, start time.Time) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(level).Inc()
	m.evaluationLatency.Observe(time.Since(start).Seconds())
}

// IncRuleMutation records a create, update or delete of a rule.
func (m *Metrics) IncRuleMutation(action string) {
	if m == nil {
		return
	}
	m.ruleMutations.WithLabelValues(action).Inc()
}

// ObserveEstimate records a carrier fan-out and the number of options it produced.
func (m *Metrics) ObserveEstimate(serviceLevel string, options int, err error, start time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.estimates.WithLabelValues(serviceLevel, outcome).Inc()
	m.estimateLatency.Observe(time.Since(start).Seconds())
	if err == nil {
		m.estimateOptions.Observe(float64(options))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
