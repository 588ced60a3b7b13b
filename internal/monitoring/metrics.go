package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. It satisfies
// extraction.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	ExtractionsTotal *prometheus.CounterVec
	UpstreamSeconds  *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	SchemaWarnings   prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
}

// NewMetrics registers the metrics on a fresh registry, so several instances
// can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_extractor_extractions_total",
			Help: "The total number of image extractions by source and outcome",
		}, []string{"source", "outcome"}), // outcome: success, failure
		UpstreamSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entity_extractor_upstream_duration_seconds",
			Help:    "Latency of model completion calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		}, []string{"backend"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_extractor_upstream_errors_total",
			Help: "The total number of failed model completion calls",
		}, []string{"backend"}),
		SchemaWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "entity_extractor_schema_warnings_total",
			Help: "The total number of schema warnings raised on model payloads",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_extractor_http_requests_total",
			Help: "The total number of API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// ObserveCompletion records one model call.
func (m *Metrics) ObserveCompletion(backend string, elapsed time.Duration, err error) {
	m.UpstreamSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
	if err != nil {
		m.UpstreamErrors.WithLabelValues(backend).Inc()
	}
}

// ObserveResult records the outcome of one extraction.
func (m *Metrics) ObserveResult(source string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.ExtractionsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveWarnings adds n schema warnings.
func (m *Metrics) ObserveWarnings(n int) {
	m.SchemaWarnings.Add(float64(n))
}

func (m *Metrics) IncRequest(route, code string) {
	m.RequestsTotal.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
