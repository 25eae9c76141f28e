package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics holds the Prometheus metrics owned by a MemoryStore.
// A nil Registerer in MemoryStoreConfig yields metrics that are created but
// never registered, so stores built in tests stay hermetic.
type storeMetrics struct {
	// fragments is the number of fragments currently held by the store.
	fragments prometheus.Gauge

	// embeddings is the number of fragments that currently carry an embedding.
	embeddings prometheus.Gauge

	// ingestOutcomes counts per-fragment ingest results, partitioned by outcome.
	ingestOutcomes *prometheus.CounterVec

	// searchDurationSeconds records the latency of Search including the
	// query embedding call.
	searchDurationSeconds prometheus.Histogram

	// searchResults records how many results each Search returned.
	searchResults prometheus.Histogram
}

// newStoreMetrics builds the store metrics and registers them against reg
// when reg is non-nil.
func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	factory := promauto.With(reg)

	return &storeMetrics{
		fragments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragchat",
			Subsystem: "store",
			Name:      "fragments",
			Help:      "Number of fragments currently held by the in-memory vector store.",
		}),

		embeddings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragchat",
			Subsystem: "store",
			Name:      "embeddings",
			Help:      "Number of fragments in the in-memory vector store that carry an embedding.",
		}),

		ingestOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Subsystem: "store",
			Name:      "ingest_fragments_total",
			Help:      "Total number of fragments ingested, partitioned by embedding outcome.",
		}, []string{"outcome"}),

		searchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragchat",
			Subsystem: "store",
			Name:      "search_duration_seconds",
			Help:      "Latency of vector store searches, including the query embedding call.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragchat",
			Subsystem: "store",
			Name:      "search_results",
			Help:      "Number of results returned per vector store search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
	}
}
