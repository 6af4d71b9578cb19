package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dream-ai/paperqa/internal/domain"
)

// Ingestion Prometheus metrics.
var (
	IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "ingestions_total",
			Help:      "Total number of finished ingestions by final state",
		},
		[]string{"state", "error_kind"},
	)

	IngestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperqa",
			Name:      "ingestion_duration_seconds",
			Help:      "Time from upload to Ready or Failed",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"state"},
	)

	IngestedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks indexed by successful ingestions",
		},
	)
)

// ObserveIngestion records a finished ingestion.
func ObserveIngestion(rec domain.IngestionRecord) {
	IngestionsTotal.WithLabelValues(rec.State, rec.ErrorKind).Inc()
	IngestionDuration.WithLabelValues(rec.State).Observe(rec.Duration.Seconds())
	if rec.ErrorKind == "" {
		IngestedChunksTotal.Add(float64(rec.Chunks))
	}
}
