package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ModelInfo represents information about an Ollama model
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// IsEmbedding reports whether the model looks like an embedding model.
func (m ModelInfo) IsEmbedding() bool {
	name := strings.ToLower(m.Name)
	return strings.Contains(name, "embed") || strings.Contains(name, "minilm") || strings.HasPrefix(name, "bge")
}

// ListModelsResponse represents the response from listing models
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelSelector handles model selection logic
type ModelSelector struct {
	client *Client
}

// NewModelSelector creates a new model selector
func NewModelSelector(client *Client) *ModelSelector {
	return &ModelSelector{client: client}
}

// ListModels lists all available Ollama models
func (ms *ModelSelector) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := ms.client.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// priorityModels lists generation model families that are good at pulling
// structured fields out of long text, best first.
var priorityModels = []string{
	"llama3.2",
	"llama3.1",
	"qwen2.5",
	"mistral",
	"llama3",
	"gemma",
}

// SelectBestModel picks a generation model from models. Embedding models are
// never selected.
func SelectBestModel(models []ModelInfo) (string, error) {
	var candidates []ModelInfo
	for _, m := range models {
		if !m.IsEmbedding() {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no generation models available")
	}

	for _, priority := range priorityModels {
		for _, model := range candidates {
			if strings.Contains(strings.ToLower(model.Name), priority) {
				return model.Name, nil
			}
		}
	}

	// No known family, fall back to the largest model
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Size > candidates[j].Size
	})
	return candidates[0].Name, nil
}

// GetDefaultModel returns defaultModel if the server has it, otherwise the best
// available generation model.
func (ms *ModelSelector) GetDefaultModel(ctx context.Context, defaultModel string) (string, error) {
	models, err := ms.ListModels(ctx)
	if err != nil {
		return "", err
	}

	if defaultModel != "" {
		for _, model := range models {
			if model.Name == defaultModel {
				return defaultModel, nil
			}
		}
	}

	return SelectBestModel(models)
}
