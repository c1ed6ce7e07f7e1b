// Package agent wires the retriever, the prompt assembler and the generator
// into the query phase of the CV pipeline: embed the query, fetch the most
// similar chunks, assemble the prompt and generate the document.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/cvgen-go/internal/logging"
	"github.com/54b3r/cvgen-go/internal/prompt"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// DefaultTopK is the number of chunks retrieved per query when Config.TopK
// is zero.
const DefaultTopK = 4

// PromptAssembler renders the generation prompt from ranked hits.
type PromptAssembler interface {
	Assemble(ctx context.Context, query rag.Query, hits []rag.Hit) (*prompt.Prompt, error)
}

// Generator produces a document from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*rag.GeneratedDocument, error)
}

// Config holds the dependencies required to construct a CVAgent.
type Config struct {
	// Retriever fetches context chunks for the query.
	Retriever rag.Retriever

	// Assembler renders the prompt.
	Assembler PromptAssembler

	// Generator runs the language model.
	Generator Generator

	// TopK controls how many chunks are injected per query.
	// Defaults to DefaultTopK if zero.
	TopK int
}

// CVAgent runs the query phase of the pipeline. It is safe for concurrent
// use when its dependencies are; the generator serializes model access.
type CVAgent struct {
	// retriever is the RAG retriever over the built index.
	retriever rag.Retriever

	// assembler renders prompts.
	assembler PromptAssembler

	// generator runs the model.
	generator Generator

	// topK is the number of chunks to retrieve per query.
	topK int
}

// Result is everything produced for one query.
type Result struct {
	// Document is the generated, post-processed document.
	Document *rag.GeneratedDocument

	// Prompt is the assembled prompt before any generator-side clamping.
	Prompt *prompt.Prompt

	// Hits are the retrieved chunks in rank order.
	Hits []rag.Hit
}

// New constructs a CVAgent from the provided Config.
func New(cfg *Config) (*CVAgent, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("agent: Retriever must not be nil")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("agent: Assembler must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("agent: Generator must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &CVAgent{
		retriever: cfg.Retriever,
		assembler: cfg.Assembler,
		generator: cfg.Generator,
		topK:      topK,
	}, nil
}

// Generate answers one query. An empty query text falls back to
// prompt.DefaultQuery for both retrieval and the prompt. Retrieval and
// generation failures are returned to the caller unchanged in kind so they
// can be matched with errors.Is.
func (a *CVAgent) Generate(ctx context.Context, q rag.Query) (*Result, error) {
	log := logging.FromContext(ctx)
	if strings.TrimSpace(q.Text) == "" {
		q.Text = prompt.DefaultQuery
	}

	start := time.Now()
	hits, err := a.retriever.Retrieve(ctx, q.Text, a.topK)
	if err != nil {
		return nil, fmt.Errorf("agent: retrieval failed: %w", err)
	}
	log.Debug("agent: retrieved context",
		slog.Int("hits", len(hits)),
		slog.Int("top_k", a.topK),
		slog.Duration("elapsed", time.Since(start)),
	)
	if len(hits) == 0 {
		log.Warn("agent: index returned no context, generating from the query alone")
	}

	p, err := a.assembler.Assemble(ctx, q, hits)
	if err != nil {
		return nil, fmt.Errorf("agent: prompt assembly failed: %w", err)
	}

	doc, err := a.generator.Generate(ctx, p.Text)
	if err != nil {
		return nil, fmt.Errorf("agent: generation failed: %w", err)
	}

	return &Result{Document: doc, Prompt: p, Hits: hits}, nil
}
