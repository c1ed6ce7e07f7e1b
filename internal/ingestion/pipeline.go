// Package ingestion implements the index build pipeline. It loads the source
// documents from a directory, chunks them, embeds every chunk in batches and
// replaces the vector store contents with the result.
// This pipeline is invoked by the `cvgen index` CLI command and the
// /api/reindex endpoint.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/cvgen-go/internal/loader"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// DefaultBatchSize is the number of chunks sent per embedding request.
const DefaultBatchSize = 32

// DocumentLoader reads source documents from a directory.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) (*loader.Report, error)
}

// Splitter turns documents into chunks.
type Splitter interface {
	Split(docs []rag.Document) []rag.Chunk
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of chunks embedded per request.
	// Defaults to DefaultBatchSize if zero.
	BatchSize int

	// EmbedTimeout bounds each embedding request. Zero means no extra bound
	// beyond the caller's context.
	EmbedTimeout time.Duration
}

// Report summarises a completed ingestion run.
type Report struct {
	// Documents is the number of loaded documents (PDF pages count separately).
	Documents int
	// Chunks is the number of indexed chunks.
	Chunks int
	// Skipped lists files that could not be parsed.
	Skipped []loader.SkippedFile
	// Model is the embedding model the index was built with.
	Model string
	// Dimension is the embedding dimension, 0 for an empty index.
	Dimension int
	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Pipeline orchestrates the load → chunk → embed → build flow.
type Pipeline struct {
	// loader reads the source directory.
	loader DocumentLoader

	// splitter chunks the loaded documents.
	splitter Splitter

	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(l DocumentLoader, s Splitter, embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if l == nil {
		return nil, fmt.Errorf("ingestion: loader must not be nil")
	}
	if s == nil {
		return nil, fmt.Errorf("ingestion: splitter must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	return &Pipeline{
		loader:   l,
		splitter: s,
		embedder: embedder,
		store:    store,
		cfg:      c,
	}, nil
}

// Ingest loads every document in dir and rebuilds the store from it. Files
// that fail to parse are skipped and listed in the report; any embedding or
// store failure aborts the run and leaves the previous index in place.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, dir string, progress func(msg string)) (*Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	start := time.Now()

	progress(fmt.Sprintf("loading documents from %s", dir))
	loaded, err := p.loader.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: load failed: %w", err)
	}
	for _, s := range loaded.Skipped {
		progress(fmt.Sprintf("skipped %s: %v", s.Path, s.Err))
	}

	chunks := p.splitter.Split(loaded.Documents)
	progress(fmt.Sprintf("chunked %d documents into %d chunks", len(loaded.Documents), len(chunks)))

	entries := make([]rag.IndexEntry, 0, len(chunks))
	for lo := 0; lo < len(chunks); lo += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion: %w", err)
		}
		hi := min(lo+p.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Text)
		}

		vecs, err := rag.EmbedBatch(ctx, p.embedder, texts, p.cfg.EmbedTimeout)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding chunks %d-%d failed: %w", lo, hi-1, err)
		}
		for i, v := range vecs {
			entries = append(entries, rag.IndexEntry{Chunk: chunks[lo+i], Embedding: v})
		}
		progress(fmt.Sprintf("embedded %d/%d chunks", hi, len(chunks)))
	}

	if err := p.store.Build(ctx, entries); err != nil {
		return nil, fmt.Errorf("ingestion: build index failed: %w", err)
	}

	rep := &Report{
		Documents: len(loaded.Documents),
		Chunks:    len(entries),
		Skipped:   loaded.Skipped,
		Model:     p.embedder.ModelID(),
		Elapsed:   time.Since(start),
	}
	if len(entries) > 0 {
		rep.Dimension = entries[0].Embedding.Dimension()
	}
	progress(fmt.Sprintf("indexed %d chunks (model=%s dim=%d)", rep.Chunks, rep.Model, rep.Dimension))
	return rep, nil
}
