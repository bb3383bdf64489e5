package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// AnalysisMetrics implements ports.AnalysisObserver. It owns the registry the
// HTTP metrics of the same process register into.
type AnalysisMetrics struct {
	registry *prometheus.Registry
	service  string

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runsInFlight   prometheus.Gauge
	blocksTotal    *prometheus.CounterVec
	blockDuration  *prometheus.HistogramVec
	blockCitations *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec
	ratingsTotal   *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	breakerOpen    *prometheus.GaugeVec
}

func NewAnalysisMetrics(service string) *AnalysisMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total finished analysis runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Analysis run duration in seconds by status.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "runs_in_flight",
			Help:      "Number of analysis runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	blocksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "blocks_classified_total",
			Help:      "Total classified content blocks.",
		},
		[]string{"service"},
	)
	blockDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "block_duration_seconds",
			Help:      "Per-block classification duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"service"},
	)
	blockCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "block_citations",
			Help:      "Distribution of citations attached per block.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rating",
			Subsystem: "retrieval",
			Name:      "fallbacks_total",
			Help:      "Retrieval strategies that failed over to the next one.",
		},
		[]string{"service", "strategy"},
	)
	ratingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rating",
			Subsystem: "analysis",
			Name:      "final_ratings_total",
			Help:      "Completed runs by final rating.",
		},
		[]string{"service", "rating"},
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rating",
			Subsystem: "dependency",
			Name:      "retries_total",
			Help:      "Retried calls to Ollama, Qdrant and NATS by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rating",
			Subsystem: "dependency",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is open or half-open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		runsTotal, runDuration, runsInFlight,
		blocksTotal, blockDuration, blockCitations,
		fallbacksTotal, ratingsTotal,
		retriesTotal, breakerOpen,
	)

	return &AnalysisMetrics{
		registry:       registry,
		service:        service,
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		runsInFlight:   runsInFlight,
		blocksTotal:    blocksTotal,
		blockDuration:  blockDuration,
		blockCitations: blockCitations,
		fallbacksTotal: fallbacksTotal,
		ratingsTotal:   ratingsTotal,
		retriesTotal:   retriesTotal,
		breakerOpen:    breakerOpen,
	}
}

func (m *AnalysisMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *AnalysisMetrics) RunStarted() {
	m.runsInFlight.Inc()
}

func (m *AnalysisMetrics) RunFinished(status domain.AnalysisStatus, duration time.Duration, rating *domain.Rating) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.runDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
	if rating != nil {
		m.ratingsTotal.WithLabelValues(m.service, rating.String()).Inc()
	}
}

func (m *AnalysisMetrics) BlockClassified(duration time.Duration, citations int) {
	m.blocksTotal.WithLabelValues(m.service).Inc()
	m.blockDuration.WithLabelValues(m.service).Observe(duration.Seconds())
	m.blockCitations.WithLabelValues(m.service).Observe(float64(citations))
}

func (m *AnalysisMetrics) RetrievalFallback(strategy string) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.fallbacksTotal.WithLabelValues(m.service, strategy).Inc()
}

// DependencyRetried and BreakerStateChanged implement resilience.Observer.
func (m *AnalysisMetrics) DependencyRetried(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *AnalysisMetrics) BreakerStateChanged(operation, state string) {
	v := 0.0
	if state != "closed" {
		v = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(v)
}
