// Package metrics exposes Prometheus counters for ingestion and retrieval.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfrag"

type Metrics struct {
	registry       *prometheus.Registry
	IngestRuns     *prometheus.CounterVec
	ChunksIndexed  prometheus.Counter
	UpsertBatches  prometheus.Counter
	Queries        prometheus.Counter
	SearchDuration prometheus.Histogram
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector store.",
		}),
		UpsertBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_batches_total",
			Help:      "Upsert batches committed to the vector store.",
		}),
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Individual queries answered.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of search requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.IngestRuns, m.ChunksIndexed, m.UpsertBatches, m.Queries, m.SearchDuration)
	return m
}

func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.IngestRuns.WithLabelValues(outcome).Inc()
}

// ObserveBatch counts one committed batch of n records.
func (m *Metrics) ObserveBatch(n int) {
	if m == nil {
		return
	}
	m.UpsertBatches.Inc()
	m.ChunksIndexed.Add(float64(n))
}

func (m *Metrics) ObserveSearch(queries int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Queries.Add(float64(queries))
	m.SearchDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
