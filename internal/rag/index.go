package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dream-ai/paperqa/internal/domain"
)

const (
	// DefaultBatchSize is the number of chunks sent per embedding call.
	DefaultBatchSize = 32
	// DefaultConcurrency bounds in-flight embedding calls during a build.
	DefaultConcurrency = 4

	collectionName = "chunks"
)

// errIndexDiscarded is returned when searching an index that was replaced.
var errIndexDiscarded = fmt.Errorf("index was discarded: %w", domain.ErrStale)

// IndexOptions controls how BuildIndex talks to the embedding provider.
type IndexOptions struct {
	BatchSize         int
	Concurrency       int
	RequestsPerSecond float64
	// CallTimeout bounds each embedding call. Zero means no per-call bound.
	CallTimeout time.Duration
	// Version tags the index so callers can detect supersession.
	Version uint64
	// Progress, if set, is called after each batch with the number of
	// embedded chunks. Calls are serialized.
	Progress func(done, total int)
}

func (o IndexOptions) withDefaults() IndexOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// VectorIndex holds the embedded chunks of exactly one document in an
// in-memory chromem collection.
type VectorIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	chunks     map[string]domain.Chunk

	documentID uuid.UUID
	model      string
	dim        int
	version    uint64
	discarded  bool
}

// BuildIndex embeds every chunk and stores the vectors in a fresh index. The
// build is atomic: if any batch fails the remaining calls are cancelled and no
// index is returned.
func BuildIndex(ctx context.Context, chunks []domain.Chunk, embedder domain.Embedder, opts IndexOptions) (*VectorIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("no embedder configured: %w", domain.ErrConfiguration)
	}
	opts = opts.withDefaults()

	idx, err := newVectorIndex(embedder.Model(), opts.Version)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return idx, nil
	}

	idx.documentID = chunks[0].DocumentID
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.DocumentID != idx.documentID {
			idx.Discard()
			return nil, fmt.Errorf("chunk %d belongs to document %s, index holds %s: %w",
				c.Index, c.DocumentID, idx.documentID, domain.ErrConfiguration)
		}
		id := chunkID(c.Index)
		if _, dup := idx.chunks[id]; dup {
			idx.Discard()
			return nil, fmt.Errorf("duplicate chunk index %d: %w", c.Index, domain.ErrConfiguration)
		}
		idx.chunks[id] = c
		texts[i] = c.Text
	}

	vectors, err := embedAll(ctx, embedder, texts, opts)
	if err != nil {
		idx.Discard()
		return nil, err
	}

	dim, err := checkVectors(vectors)
	if err != nil {
		idx.Discard()
		return nil, err
	}
	idx.dim = dim

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        chunkID(c.Index),
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"document_id":   c.DocumentID.String(),
				"chunk_index":   strconv.Itoa(c.Index),
				"segment_index": strconv.Itoa(c.SegmentIndex),
			},
		}
	}
	if err := idx.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		idx.Discard()
		return nil, fmt.Errorf("failed to add vectors to index: %w: %w", domain.ErrEmbedding, err)
	}

	return idx, nil
}

func newVectorIndex(model string, version uint64) (*VectorIndex, error) {
	db := chromem.NewDB()
	// Vectors are always supplied by BuildIndex, so the collection must never
	// embed on its own.
	collection, err := db.CreateCollection(collectionName, map[string]string{"model": model}, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &VectorIndex{
		db:         db,
		collection: collection,
		chunks:     make(map[string]domain.Chunk),
		model:      model,
		version:    version,
	}, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("index does not embed text itself")
}

// embedAll sends texts in batches, keeping the result aligned with the input.
func embedAll(ctx context.Context, embedder domain.Embedder, texts []string, opts IndexOptions) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	var (
		progressMu sync.Mutex
		done       int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(texts))
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return domain.CallError(err, domain.ErrEmbedding)
				}
			}
			batch, err := embed(gctx, embedder, texts[start:end], opts.CallTimeout)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:end], batch)

			if opts.Progress != nil {
				progressMu.Lock()
				done += end - start
				opts.Progress(done, len(texts))
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embed performs one bounded provider call and checks the vector count.
func embed(ctx context.Context, embedder domain.Embedder, texts []string, timeout time.Duration) ([][]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, domain.CallError(err, domain.ErrEmbedding)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts: %w",
			len(vectors), len(texts), domain.ErrEmbedding)
	}
	return vectors, nil
}

// checkVectors returns the shared dimension of vectors. Empty, zero and
// mismatched vectors are rejected.
func checkVectors(vectors [][]float32) (int, error) {
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, fmt.Errorf("vector %d is empty: %w", i, domain.ErrEmbedding)
		}
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d has dimension %d, expected %d: %w", i, len(v), dim, domain.ErrEmbedding)
		}
		if isZero(v) {
			return 0, fmt.Errorf("vector %d is all zeros: %w", i, domain.ErrEmbedding)
		}
	}
	return dim, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func chunkID(index int) string {
	return strconv.Itoa(index)
}

// Model returns the embedding model the index was built with.
func (idx *VectorIndex) Model() string { return idx.model }

// Dim returns the vector dimension, 0 for an empty index.
func (idx *VectorIndex) Dim() int { return idx.dim }

// Version returns the session version the index was built for.
func (idx *VectorIndex) Version() uint64 { return idx.version }

// DocumentID returns the document every chunk belongs to.
func (idx *VectorIndex) DocumentID() uuid.UUID { return idx.documentID }

// Len returns the number of indexed chunks.
func (idx *VectorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Discarded reports whether Discard has been called.
func (idx *VectorIndex) Discarded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.discarded
}

// Discard drops every stored vector. Searching a discarded index fails with
// domain.ErrStale.
func (idx *VectorIndex) Discard() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.discarded {
		return
	}
	_ = idx.db.DeleteCollection(collectionName)
	idx.db = nil
	idx.collection = nil
	idx.chunks = nil
	idx.discarded = true
}

// search scores every chunk against vec. Results are in chromem order; the
// caller sorts them.
func (idx *VectorIndex) search(ctx context.Context, vec []float32) ([]domain.ScoredChunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.discarded {
		return nil, errIndexDiscarded
	}
	n := idx.collection.Count()
	if n == 0 {
		return nil, domain.ErrEmptyIndex
	}

	results, err := idx.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	scored := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		c, ok := idx.chunks[r.ID]
		if !ok {
			return nil, fmt.Errorf("index returned unknown chunk %q", r.ID)
		}
		scored = append(scored, domain.ScoredChunk{Chunk: c, Score: r.Similarity})
	}
	return scored, nil
}
