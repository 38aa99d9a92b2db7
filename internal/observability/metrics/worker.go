package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	extractionTotal  *prometheus.CounterVec
	chunksTotal      *prometheus.CounterVec
	degradedChunks   *prometheus.CounterVec
	partialDocuments *prometheus.CounterVec

	breakers *breakerTransitions
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total ingestion runs by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Ingestion run duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight ingestion runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between the ingestion request and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	extractionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "extraction_total",
			Help:      "Successful ingestions by extraction method.",
		},
		[]string{"service", "method"},
	)
	chunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index.",
		},
		[]string{"service"},
	)
	degradedChunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "degraded_chunks_total",
			Help:      "Chunks indexed with the degraded zero vector.",
		},
		[]string{"service"},
	)
	partialDocuments := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "partially_indexed_documents_total",
			Help:      "Documents that finished with at least one degraded chunk.",
		},
		[]string{"service"},
	)
	breakers := newBreakerTransitions(service)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		extractionTotal,
		chunksTotal,
		degradedChunks,
		partialDocuments,
	)
	breakers.register(registry)

	return &WorkerMetrics{
		service:          service,
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		extractionTotal:  extractionTotal,
		chunksTotal:      chunksTotal,
		degradedChunks:   degradedChunks,
		partialDocuments: partialDocuments,
		breakers:         breakers,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	switch {
	case domain.IsKind(err, domain.ErrLeaseHeld):
		status = "skipped"
	case err != nil:
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveIngestion(method domain.ExtractionMethod, outcome domain.IngestionOutcome) {
	m.extractionTotal.WithLabelValues(m.service, string(method)).Inc()
	m.chunksTotal.WithLabelValues(m.service).Add(float64(outcome.ChunkCount))
	if outcome.DegradedChunks > 0 {
		m.degradedChunks.WithLabelValues(m.service).Add(float64(outcome.DegradedChunks))
		m.partialDocuments.WithLabelValues(m.service).Inc()
	}
}

func (m *WorkerMetrics) BreakerObserver() func(operation string, from, to gobreaker.State) {
	return m.breakers.observe
}
