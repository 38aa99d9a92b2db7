package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

const namespace = "pdfchat"

// HTTPServerMetrics owns the API process registry: request metrics, the
// retrieval observations of chat turns and breaker transitions.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	ragTurns    *prometheus.CounterVec
	ragHits     *prometheus.CounterVec
	ragNoCtx    *prometheus.CounterVec
	ragIncluded *prometheus.HistogramVec
	ragLatency  *prometheus.HistogramVec

	breakers *breakerTransitions
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	serviceLabel := prometheus.Labels{"service": service}

	m := &HTTPServerMetrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: serviceLabel,
		}, []string{"method", "path", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			ConstLabels: serviceLabel,
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: serviceLabel,
		}),
		ragTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "requests_total",
			Help:        "Total successful retrievals.",
			ConstLabels: serviceLabel,
		}, []string{"endpoint"}),
		ragHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "retrieval_hit_total",
			Help:        "Total retrievals with at least one included chunk.",
			ConstLabels: serviceLabel,
		}, []string{"endpoint"}),
		ragNoCtx: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "no_context_total",
			Help:        "Total retrievals that produced an empty context.",
			ConstLabels: serviceLabel,
		}, []string{"endpoint"}),
		ragIncluded: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "retrieved_chunks",
			Help:        "Chunks included in the context per retrieval.",
			ConstLabels: serviceLabel,
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"endpoint"}),
		ragLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "duration_seconds",
			Help:        "Retrieval duration in seconds.",
			ConstLabels: serviceLabel,
			Buckets:     prometheus.DefBuckets,
		}, []string{"endpoint"}),
		breakers: newBreakerTransitions(service),
	}
	m.breakers.register(registry)
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.latency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses document ids so label cardinality stays bounded.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/documents/")
	if !ok || rest == "" {
		return path
	}
	_, action, hasAction := strings.Cut(rest, "/")
	if !hasAction {
		return "/v1/documents/{id}"
	}
	switch action {
	case "chat", "reingest":
		return "/v1/documents/{id}/" + action
	default:
		return "/v1/documents/{id}/other"
	}
}

func (m *HTTPServerMetrics) RecordRAGObservation(endpoint string, sourceCount int, duration time.Duration) {
	m.ragTurns.WithLabelValues(endpoint).Inc()
	m.ragIncluded.WithLabelValues(endpoint).Observe(float64(sourceCount))
	m.ragLatency.WithLabelValues(endpoint).Observe(duration.Seconds())

	if sourceCount > 0 {
		m.ragHits.WithLabelValues(endpoint).Inc()
		return
	}
	m.ragNoCtx.WithLabelValues(endpoint).Inc()
}

// BreakerObserver plugs into the resilience executor.
func (m *HTTPServerMetrics) BreakerObserver() func(operation string, from, to gobreaker.State) {
	return m.breakers.observe
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
