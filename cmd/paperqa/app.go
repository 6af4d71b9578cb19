package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dream-ai/paperqa/config"
	"github.com/dream-ai/paperqa/internal/db"
	"github.com/dream-ai/paperqa/internal/documents"
	"github.com/dream-ai/paperqa/internal/domain"
	"github.com/dream-ai/paperqa/internal/logger"
	"github.com/dream-ai/paperqa/internal/metrics"
	"github.com/dream-ai/paperqa/internal/ollama"
	"github.com/dream-ai/paperqa/internal/openai"
	"github.com/dream-ai/paperqa/internal/rag"
)

// app holds everything a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	embedder  domain.Embedder
	generator domain.Generator
	journal   *db.DB
	metrics   *http.Server
}

// loadConfig reads .env, the config file and command-line overrides.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, cfg.Validate()
}

// newApp wires providers, logging, metrics and the optional journal.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if f := cfg.Logging.File; f != "" {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	log, err := logger.NewLogger(cfg.Logging.Env, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    log,
		embedder:  newEmbedder(cfg, log),
		generator: newGenerator(cfg, log),
	}

	metrics.Register()
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}

	if cs := cfg.Database.ConnectionString; cs != "" {
		journal, err := db.New(ctx, cs)
		if err == nil {
			err = journal.EnsureSchema(ctx)
		}
		if err != nil {
			// the journal is optional; ingestion works without it
			log.Warn("ingestion journal disabled", zap.Error(err))
		} else {
			a.journal = journal
		}
	}

	log.Info("paperqa starting",
		zap.String("embeddings", cfg.Embeddings.Provider+"/"+a.embedder.Model()),
		zap.String("generation", cfg.Generation.Provider+"/"+a.generator.Model()),
		zap.Bool("journal", a.journal != nil),
	)
	return a, nil
}

func newEmbedder(cfg *config.Config, log *zap.Logger) domain.Embedder {
	var e domain.Embedder
	switch cfg.Embeddings.Provider {
	case config.ProviderOpenAI:
		e = openai.NewEmbedder(&openai.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.Embeddings.Model,
			Logger:  log,
		})
	default:
		e = ollama.NewEmbedder(ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.APIKey), cfg.Embeddings.Model)
	}
	return metrics.InstrumentEmbedder(cfg.Embeddings.Provider, e)
}

func newGenerator(cfg *config.Config, log *zap.Logger) domain.Generator {
	var g domain.Generator
	switch cfg.Generation.Provider {
	case config.ProviderOpenAI:
		g = openai.NewGenerator(&openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.Generation.Model,
			Temperature: float32(cfg.Generation.Temperature),
			Logger:      log,
		})
	default:
		g = ollama.NewGenerator(ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.APIKey), cfg.Generation.Model, cfg.Generation.Temperature)
	}
	return metrics.InstrumentGenerator(cfg.Generation.Provider, g)
}

// sessionOptions maps configuration onto the pipeline options.
func (a *app) sessionOptions() rag.Options {
	opts := rag.DefaultOptions()
	opts.ChunkSize = a.cfg.Processing.ChunkSize
	opts.ChunkOverlap = a.cfg.Processing.ChunkOverlap
	opts.TopK = a.cfg.Processing.TopK
	opts.CallTimeout = a.cfg.CallTimeout()
	opts.Index.BatchSize = a.cfg.Embeddings.BatchSize
	opts.Index.Concurrency = a.cfg.Embeddings.Concurrency
	opts.Index.RequestsPerSecond = a.cfg.Embeddings.RequestsPerSecond
	if a.cfg.Query.Template != "" {
		opts.Query = a.cfg.Query.Template
	}
	opts.Instruction = a.cfg.Query.Instruction
	opts.Logger = a.logger
	if a.journal != nil {
		opts.Journal = a.journal
	}
	return opts
}

func (a *app) newSession(opts rag.Options) *rag.Session {
	return rag.NewSession(documents.NewPDFExtractor(), a.embedder, a.generator, opts)
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
}

// Close releases the journal and metrics server and flushes logs.
func (a *app) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	_ = a.logger.Sync()
}
