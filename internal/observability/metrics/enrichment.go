package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EnrichmentMetrics observes enrichment runs; it satisfies
// ports.EnrichmentObserver.
type EnrichmentMetrics struct {
	registry *prometheus.Registry
	service  string

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runsInFlight     prometheus.Gauge
	chaptersAnalyzed *prometheus.CounterVec
}

// NewEnrichmentMetrics registers on registry, or on a fresh one when nil.
func NewEnrichmentMetrics(service string, registry *prometheus.Registry) *EnrichmentMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "runs_total",
			Help:      "Finished enrichment runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "run_duration_seconds",
			Help:      "Enrichment run duration in seconds by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"service", "outcome"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "runs_in_flight",
			Help:      "Number of enrichment runs in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chaptersAnalyzed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "chapters_total",
			Help:      "Persisted chapters by analysis result.",
		},
		[]string{"service", "analysis"},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, chaptersAnalyzed)

	return &EnrichmentMetrics{
		registry:         registry,
		service:          service,
		runsTotal:        runsTotal,
		runDuration:      runDuration,
		runsInFlight:     runsInFlight,
		chaptersAnalyzed: chaptersAnalyzed,
	}
}

func (m *EnrichmentMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EnrichmentMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *EnrichmentMetrics) FinishRun(outcome string, duration time.Duration) {
	m.runsInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.runsTotal.WithLabelValues(m.service, outcome).Inc()
	m.runDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *EnrichmentMetrics) ChapterAnalyzed(ok bool) {
	result := "ok"
	if !ok {
		result = "degraded"
	}
	m.chaptersAnalyzed.WithLabelValues(m.service, result).Inc()
}
