package ollama

import (
	"context"
	"fmt"

	"github.com/dream-ai/paperqa/internal/domain"
)

// Embedder computes embeddings with an Ollama model
type Embedder struct {
	client *Client
	model  string
}

// NewEmbedder creates a new embedder
func NewEmbedder(client *Client, model string) *Embedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	return &Embedder{client: client, model: model}
}

// Model returns the embedding model name
func (e *Embedder) Model() string { return e.model }

// Embed sends all texts in one request
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, domain.CallError(err, domain.ErrEmbedding)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts: %w",
			len(resp.Embeddings), len(texts), domain.ErrEmbedding)
	}
	return resp.Embeddings, nil
}

// Generator produces answers with an Ollama model
type Generator struct {
	client      *Client
	model       string
	temperature float64
}

// NewGenerator creates a new generator
func NewGenerator(client *Client, model string, temperature float64) *Generator {
	if model == "" {
		model = "llama3.2"
	}
	return &Generator{client: client, model: model, temperature: temperature}
}

// Model returns the generation model name
func (g *Generator) Model() string { return g.model }

// Generate runs one non-streaming completion
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.client.Generate(ctx, &GenerateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": g.temperature},
	})
	if err != nil {
		return "", domain.CallError(err, domain.ErrGeneration)
	}
	return text, nil
}
