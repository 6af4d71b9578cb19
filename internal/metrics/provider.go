package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dream-ai/paperqa/internal/domain"
)

// Provider call Prometheus metrics.
var (
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "provider_requests_total",
			Help:      "Total number of embedding and generation requests",
		},
		[]string{"provider", "operation", "model", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperqa",
			Name:      "provider_request_duration_seconds",
			Help:      "Provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation", "model"},
	)

	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "provider_errors_total",
			Help:      "Total provider errors by kind",
		},
		[]string{"provider", "operation", "model", "kind"},
	)

	EmbeddedTextsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "embedded_texts_total",
			Help:      "Total number of texts sent for embedding",
		},
		[]string{"provider", "model"},
	)
)

var registerOnce sync.Once

// Register registers every paperqa metric with the default registry. It is
// safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ProviderRequestsTotal)
		prometheus.MustRegister(ProviderRequestDuration)
		prometheus.MustRegister(ProviderErrorsTotal)
		prometheus.MustRegister(EmbeddedTextsTotal)
		prometheus.MustRegister(IngestionsTotal)
		prometheus.MustRegister(IngestionDuration)
		prometheus.MustRegister(IngestedChunksTotal)
	})
}

func observe(provider, operation, model string, start time.Time, err error) {
	ProviderRequestDuration.WithLabelValues(provider, operation, model).Observe(time.Since(start).Seconds())
	if err != nil {
		ProviderRequestsTotal.WithLabelValues(provider, operation, model, "error").Inc()
		ProviderErrorsTotal.WithLabelValues(provider, operation, model, domain.Kind(err)).Inc()
		return
	}
	ProviderRequestsTotal.WithLabelValues(provider, operation, model, "success").Inc()
}

type embedder struct {
	next     domain.Embedder
	provider string
}

// InstrumentEmbedder wraps e so every call is counted and timed.
func InstrumentEmbedder(provider string, e domain.Embedder) domain.Embedder {
	return &embedder{next: e, provider: provider}
}

func (e *embedder) Model() string { return e.next.Model() }

func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.next.Embed(ctx, texts)
	observe(e.provider, "embed", e.next.Model(), start, err)
	if err == nil {
		EmbeddedTextsTotal.WithLabelValues(e.provider, e.next.Model()).Add(float64(len(texts)))
	}
	return vectors, err
}

type generator struct {
	next     domain.Generator
	provider string
}

// InstrumentGenerator wraps g so every call is counted and timed.
func InstrumentGenerator(provider string, g domain.Generator) domain.Generator {
	return &generator{next: g, provider: provider}
}

func (g *generator) Model() string { return g.next.Model() }

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := g.next.Generate(ctx, prompt)
	observe(g.provider, "generate", g.next.Model(), start, err)
	return text, err
}
