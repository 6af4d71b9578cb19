// Package openai provides embeddings and chat completions through any
// OpenAI-compatible API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dream-ai/paperqa/internal/domain"
)

// Config holds the provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func logger(cfg *Config) *zap.Logger {
	if cfg.Logger == nil {
		return zap.NewNop()
	}
	return cfg.Logger
}

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	hasKey bool
	logger *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &Embedder{
		client: newClient(cfg),
		model:  openai.EmbeddingModel(model),
		hasKey: cfg.APIKey != "",
		logger: logger(cfg),
	}
}

// Model implements domain.Embedder.
func (e *Embedder) Model() string { return string(e.model) }

// Embed implements domain.Embedder with one request for all texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.hasKey {
		return nil, fmt.Errorf("no API key configured: %w", domain.ErrAuth)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, domain.CallError(parseAPIError(err), domain.ErrEmbedding)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d texts: %w",
			len(resp.Data), len(texts), domain.ErrEmbedding)
	}

	// Data is not guaranteed to be in input order.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("embedding API returned index %d at position %d: %w", d.Index, i, domain.ErrEmbedding)
		}
		vectors[i] = d.Embedding
	}

	e.logger.Debug("embedded texts",
		zap.String("model", string(e.model)),
		zap.Int("count", len(texts)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return vectors, nil
}

// Generator is a chat completion provider using the OpenAI-compatible API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	hasKey      bool
	logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation provider.
func NewGenerator(cfg *Config) *Generator {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Generator{
		client:      newClient(cfg),
		model:       model,
		temperature: cfg.Temperature,
		hasKey:      cfg.APIKey != "",
		logger:      logger(cfg),
	}
}

// Model implements domain.Generator.
func (g *Generator) Model() string { return g.model }

// Generate implements domain.Generator with a single user message.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.hasKey {
		return "", fmt.Errorf("no API key configured: %w", domain.ErrAuth)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", domain.CallError(parseAPIError(err), domain.ErrGeneration)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", domain.ErrGeneration)
	}

	g.logger.Debug("generated answer",
		zap.String("model", g.model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// parseAPIError converts go-openai HTTP errors into *domain.StatusError so the
// status code can be classified. Other errors are returned unchanged.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error: %w", &domain.StatusError{
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		})
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("API request error: %w", &domain.StatusError{
			StatusCode: reqErr.HTTPStatusCode,
			Body:       string(reqErr.Body),
		})
	}

	return err
}
