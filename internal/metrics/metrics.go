// Package metrics holds the Prometheus instruments shared by the pipeline,
// the query service and the HTTP server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls *prometheus.CounterVec

	batchesTotal      *prometheus.CounterVec
	entitiesIn        prometheus.Counter
	entitiesOut       prometheus.Counter
	entityCollisions  prometheus.Counter
	chunksTotal       *prometheus.CounterVec
	relationsAccepted prometheus.Counter
	relationsRejected prometheus.Counter

	graphTriples prometheus.Gauge

	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
}

// New creates the instruments on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}
	m.initializePipelineMetrics()
	m.initializeQueryMetrics()
	return m
}

func (m *Metrics) initializePipelineMetrics() {
	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlkg_llm_calls_total",
			Help: "Total LLM chat attempts by outcome",
		},
		[]string{"status"},
	)
	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlkg_normalizer_batches_total",
			Help: "Normalization batches by parse outcome",
		},
		[]string{"parse"},
	)
	m.entitiesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlkg_normalizer_entities_in_total",
		Help: "Entity candidates sent to normalization",
	})
	m.entitiesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlkg_normalizer_entities_out_total",
		Help: "Normalized entities produced",
	})
	m.entityCollisions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlkg_normalizer_collisions_total",
		Help: "Canonical names overwritten by a later batch",
	})
	m.chunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlkg_extractor_chunks_total",
			Help: "Chunks handled by the relation extractor by outcome",
		},
		[]string{"status"},
	)
	m.relationsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlkg_extractor_relations_accepted_total",
		Help: "Relations that passed validation",
	})
	m.relationsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mlkg_extractor_relations_rejected_total",
		Help: "Relations dropped by validation",
	})
	m.graphTriples = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mlkg_graph_triples",
		Help: "Triples in the loaded knowledge graph",
	})

	m.registry.MustRegister(m.llmCalls, m.batchesTotal, m.entitiesIn, m.entitiesOut, m.entityCollisions,
		m.chunksTotal, m.relationsAccepted, m.relationsRejected, m.graphTriples)
}

func (m *Metrics) initializeQueryMetrics() {
	m.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlkg_queries_total",
			Help: "Questions answered by query type and outcome",
		},
		[]string{"query_type", "status"},
	)
	m.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlkg_query_duration_seconds",
			Help:    "Time to answer a question",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"query_type"},
	)
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlkg_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
	m.registry.MustRegister(m.queriesTotal, m.queryDuration, m.httpRequests)
}

// Registry exposes the underlying registry, mainly for tests.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// LLMCall records one chat attempt.
func (m *Metrics) LLMCall(err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(status(err)).Inc()
}

// NormalizationBatch records one batch and the parser path that handled it.
func (m *Metrics) NormalizationBatch(parse string, entitiesIn, entitiesOut int) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(parse).Inc()
	m.entitiesIn.Add(float64(entitiesIn))
	m.entitiesOut.Add(float64(entitiesOut))
}

// EntityCollision records a canonical name overwritten during merge.
func (m *Metrics) EntityCollision() {
	if m == nil {
		return
	}
	m.entityCollisions.Inc()
}

// ChunkExtracted records one chunk handled by the relation extractor.
// status is one of "ok", "skipped", "failed" or "parse_failed".
func (m *Metrics) ChunkExtracted(status string, accepted, rejected int) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(status).Inc()
	m.relationsAccepted.Add(float64(accepted))
	m.relationsRejected.Add(float64(rejected))
}

// GraphSize sets the triple gauge.
func (m *Metrics) GraphSize(triples int) {
	if m == nil {
		return
	}
	m.graphTriples.Set(float64(triples))
}

// Query records one answered question.
func (m *Metrics) Query(queryType string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(queryType, status(err)).Inc()
	m.queryDuration.WithLabelValues(queryType).Observe(elapsed.Seconds())
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
