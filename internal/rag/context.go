package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dream-ai/paperqa/internal/domain"
)

// DefaultQuery asks for the structured summary of an uploaded paper.
const DefaultQuery = "Give me the title, summary, publication date, and authors of the research paper."

// DefaultInstruction is the fixed task description placed before the context.
const DefaultInstruction = `You are an assistant that extracts bibliographic information from research papers.
Use only the excerpts below to answer. Report the title, a short summary, the publication date and the authors.
If a field cannot be found in the excerpts, say that it is not available.`

// Synthesizer builds a prompt from retrieved chunks and asks a generator for the answer
type Synthesizer struct {
	generator   domain.Generator
	instruction string
	callTimeout time.Duration
}

// NewSynthesizer creates a new answer synthesizer
func NewSynthesizer(generator domain.Generator, instruction string, callTimeout time.Duration) *Synthesizer {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return &Synthesizer{
		generator:   generator,
		instruction: instruction,
		callTimeout: callTimeout,
	}
}

// BuildContext formats the retrieved chunks in result order
func (s *Synthesizer) BuildContext(result domain.QueryResult) string {
	var parts []string
	for i, text := range result.Texts() {
		parts = append(parts, fmt.Sprintf("### Excerpt %d:", i+1))
		parts = append(parts, text)
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt creates a complete prompt with context and user query
func (s *Synthesizer) BuildPrompt(context, query string) string {
	var parts []string

	parts = append(parts, s.instruction)
	parts = append(parts, "")

	if context != "" {
		parts = append(parts, "## Paper Excerpts:")
		parts = append(parts, context)
		parts = append(parts, "")
	}

	parts = append(parts, "## Question:")
	parts = append(parts, query)

	return strings.Join(parts, "\n")
}

// Synthesize makes exactly one generation call and returns the response
// verbatim. Failed calls are not retried.
func (s *Synthesizer) Synthesize(ctx context.Context, result domain.QueryResult, query string) (domain.Answer, error) {
	prompt := s.BuildPrompt(s.BuildContext(result), query)

	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("failed to generate answer: %w", domain.CallError(err, domain.ErrGeneration))
	}
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, fmt.Errorf("model %s returned an empty response: %w", s.generator.Model(), domain.ErrGeneration)
	}

	return domain.Answer{
		Text:    text,
		Model:   s.generator.Model(),
		Sources: result,
	}, nil
}
