package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels of index event processing.
const (
	OutcomeIndexed      = "indexed"
	OutcomeDeleted      = "deleted"
	OutcomeDropped      = "dropped"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeFailed       = "failed"
	OutcomeSuccess      = "success"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  *prometheus.GaugeVec

	// Index event metrics
	EventsPublished      *prometheus.CounterVec
	EventPublishFailures *prometheus.CounterVec
	EventsProcessed      *prometheus.CounterVec
	EventRetries         *prometheus.CounterVec
	IndexDuration        *prometheus.HistogramVec
	BulkDocuments        *prometheus.CounterVec

	// Query metrics
	SearchQueries     *prometheus.CounterVec
	SearchDuration    *prometheus.HistogramVec
	DegradedSearches  *prometheus.CounterVec
	CircuitBreakState *prometheus.GaugeVec

	// History metrics
	HistoryOperations *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPActiveRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_active_requests",
				Help:      "Number of active HTTP requests",
			},
			[]string{"method"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_events_published_total",
				Help:      "Index events handed to the broker",
			},
			[]string{"entity_type", "event_type"},
		),
		EventPublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_event_publish_failures_total",
				Help:      "Index events that could not be handed to the broker",
			},
			[]string{"entity_type"},
		),
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_events_processed_total",
				Help:      "Index events consumed, by outcome",
			},
			[]string{"entity_type", "event_type", "outcome"},
		),
		EventRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_event_retries_total",
				Help:      "Retried index event processing attempts",
			},
			[]string{"entity_type"},
		),
		IndexDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "index_event_duration_seconds",
				Help:      "Time to process one index event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity_type"},
		),
		BulkDocuments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_reindex_documents_total",
				Help:      "Documents written by bulk reindex, by outcome",
			},
			[]string{"entity_type", "outcome"},
		),

		SearchQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_queries_total",
				Help:      "Search engine queries, by outcome",
			},
			[]string{"entity_type", "outcome"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_query_duration_seconds",
				Help:      "Search engine query latency",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"entity_type"},
		),
		DegradedSearches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_degraded_total",
				Help:      "Composed searches that returned an empty section for a failed entity type",
			},
			[]string{"operation", "entity_type"},
		),
		CircuitBreakState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		HistoryOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_history_operations_total",
				Help:      "Search history store operations, by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m.gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	m.Register(reg)

	return m
}

// Register registers all metrics with reg
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPActiveRequests,
		m.EventsPublished,
		m.EventPublishFailures,
		m.EventsProcessed,
		m.EventRetries,
		m.IndexDuration,
		m.BulkDocuments,
		m.SearchQueries,
		m.SearchDuration,
		m.DegradedSearches,
		m.CircuitBreakState,
		m.HistoryOperations,
	)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// HTTPMetricsMiddleware returns middleware that collects HTTP metrics.
// Paths are labelled with their route template to bound cardinality.
func (m *Metrics) HTTPMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPActiveRequests.WithLabelValues(r.Method).Inc()
			defer m.HTTPActiveRequests.WithLabelValues(r.Method).Dec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}
			status := strconv.Itoa(wrapped.statusCode)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
