package rag

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dream-ai/paperqa/internal/domain"
)

// constantEmbedder maps every text to the same vector.
type constantEmbedder struct {
	model string
	vec   []float32
	calls atomic.Int64
}

func newConstantEmbedder() *constantEmbedder {
	return &constantEmbedder{model: "const-embed", vec: []float32{0.5, 0.5, 0.5}}
}

func (e *constantEmbedder) Model() string { return e.model }

func (e *constantEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), e.vec...)
	}
	return out, nil
}

var vocabulary = []string{"alpha", "beta", "gamma"}

// keywordEmbedder counts vocabulary words. The trailing constant keeps every
// vector non-zero.
type keywordEmbedder struct {
	calls atomic.Int64
}

func (e *keywordEmbedder) Model() string { return "keyword-embed" }

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(vocabulary)+1)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			for j, word := range vocabulary {
				if strings.Trim(w, ".,") == word {
					v[j]++
				}
			}
		}
		v[len(vocabulary)] = 1
		out[i] = v
	}
	return out, nil
}

// funcEmbedder delegates to fn.
type funcEmbedder struct {
	model string
	fn    func(ctx context.Context, texts []string) ([][]float32, error)
	calls atomic.Int64
}

func (e *funcEmbedder) Model() string { return e.model }

func (e *funcEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	return e.fn(ctx, texts)
}

// fixedGenerator returns the same response to every prompt and keeps the prompts.
type fixedGenerator struct {
	response string
	err      error

	mu      sync.Mutex
	prompts []string
}

func (g *fixedGenerator) Model() string { return "fixed-gen" }

func (g *fixedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func (g *fixedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// blockingGenerator waits for its context once started is closed.
type blockingGenerator struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{started: make(chan struct{})}
}

func (g *blockingGenerator) Model() string { return "blocking-gen" }

func (g *blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	g.once.Do(func() { close(g.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

// memoryJournal keeps ingestion records in memory.
type memoryJournal struct {
	mu      sync.Mutex
	records []domain.IngestionRecord
	err     error
}

func (j *memoryJournal) RecordIngestion(_ context.Context, rec domain.IngestionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return j.err
}

func (j *memoryJournal) all() []domain.IngestionRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.IngestionRecord(nil), j.records...)
}

func makeChunks(docID uuid.UUID, texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{DocumentID: docID, Index: i, Text: t}
	}
	return chunks
}
