// Package pipeline runs the full RAG cycle: retrieve context, then generate
// an answer grounded in it. Ask always returns a structured Answer;
// retrieval failures become a "Search error" answer and generation failures
// are folded into the answer text, because the retrieved context and
// sources are still useful to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"webrag/internal/adapter/llm"
	"webrag/internal/retrieval"
)

// NoContextAnswer is returned when retrieval finds nothing to ground an
// answer in. No generation call is made in that case.
const NoContextAnswer = "Sorry, I could not find relevant information to answer your question."

type Answer struct {
	Text        string                `json:"answer"`
	ContextUsed string                `json:"context"`
	Sources     []string              `json:"sources"`
	Chunks      []retrieval.SearchHit `json:"chunks"`
	Prompt      string                `json:"full_prompt,omitempty"`
	Success     bool                  `json:"success"`
	Query       string                `json:"query,omitempty"`
}

type Retriever interface {
	FindRelevantContext(ctx context.Context, query string, topK int) (*retrieval.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, query, contextText string) (answer string, prompt string, err error)
}

type Pipeline struct {
	retriever Retriever
	generator Generator
}

func NewPipeline(r Retriever, g Generator) *Pipeline {
	return &Pipeline{retriever: r, generator: g}
}

// Ask retrieves context for the query and generates an answer from it.
// topK <= 0 uses the retriever's configured default.
func (p *Pipeline) Ask(ctx context.Context, query string, topK int) Answer {
	result, err := p.retriever.FindRelevantContext(ctx, query, topK)
	if err != nil {
		slog.WarnContext(ctx, "retrieval failed", "error", err)
		return Answer{
			Text:    fmt.Sprintf("Search error: %v", err),
			Success: false,
		}
	}

	if result.Context == "" {
		return Answer{
			Text:    NoContextAnswer,
			Sources: result.Sources,
			Chunks:  result.Chunks,
			Success: false,
		}
	}

	text, prompt, err := p.generator.Generate(ctx, query, result.Context)
	if err != nil {
		// Folded, not failed: the caller still gets context and sources.
		provider := "LLM"
		var perr *llm.ProviderError
		if errors.As(err, &perr) {
			provider = perr.Provider
		}
		detail := err
		if perr != nil {
			detail = perr.Err
		}
		slog.WarnContext(ctx, "generation failed", "provider", provider, "error", err)
		text = fmt.Sprintf("Error calling %s API: %v", provider, detail)
	}

	return Answer{
		Text:        text,
		ContextUsed: result.Context,
		Sources:     result.Sources,
		Chunks:      result.Chunks,
		Prompt:      prompt,
		Success:     true,
		Query:       query,
	}
}
