package domain

import "context"

// Embedder computes embedding vectors. Implementations return exactly one vector
// per input text, in input order.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}
