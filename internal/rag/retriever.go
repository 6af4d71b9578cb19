package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dream-ai/paperqa/internal/domain"
)

// DefaultTopK is the number of chunks retrieved when no K is given.
const DefaultTopK = 4

// Retriever handles RAG retrieval using vector similarity search
type Retriever struct {
	embedder    domain.Embedder
	topK        int
	callTimeout time.Duration
}

// NewRetriever creates a new RAG retriever
func NewRetriever(embedder domain.Embedder, topK int, callTimeout time.Duration) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		topK:        topK,
		callTimeout: callTimeout,
	}
}

// Retrieve returns the k chunks of idx most similar to query, best first, with
// ties broken by ascending chunk index. A k of zero or less uses the
// retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, idx *VectorIndex, query string, k int) (domain.QueryResult, error) {
	if k <= 0 {
		k = r.topK
	}
	if idx == nil {
		return domain.QueryResult{}, fmt.Errorf("no index: %w", domain.ErrNotReady)
	}
	if idx.Discarded() {
		return domain.QueryResult{}, errIndexDiscarded
	}
	if r.embedder.Model() != idx.Model() {
		return domain.QueryResult{}, fmt.Errorf("query model %q does not match index model %q: %w",
			r.embedder.Model(), idx.Model(), domain.ErrConfiguration)
	}
	if idx.Len() == 0 {
		return domain.QueryResult{}, fmt.Errorf("cannot query %q: %w", query, domain.ErrEmptyIndex)
	}

	// Generate query embedding
	vectors, err := embed(ctx, r.embedder, []string{query}, r.callTimeout)
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	vec := vectors[0]
	if len(vec) != idx.Dim() {
		return domain.QueryResult{}, fmt.Errorf("query vector has dimension %d, index has %d: %w",
			len(vec), idx.Dim(), domain.ErrConfiguration)
	}
	if isZero(vec) {
		return domain.QueryResult{}, fmt.Errorf("query vector is all zeros: %w", domain.ErrEmbedding)
	}

	scored, err := idx.search(ctx, vec)
	if err != nil {
		return domain.QueryResult{}, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Index < scored[j].Chunk.Index
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	return domain.QueryResult{Query: query, Chunks: scored}, nil
}
