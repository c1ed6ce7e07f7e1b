// Package rag defines the domain types and interfaces for the retrieval-augmented
// CV generation pipeline: source documents, chunks, embeddings, the vector index
// and retrieval. Concrete backends (the in-process cosine index, Qdrant) satisfy
// these interfaces so the agent layer never depends on a specific backend.
package rag

import (
	"context"
)

// Document is a unit of loaded source text. PDF files produce one Document per
// page; plain-text files produce one Document per file. Documents are immutable
// once created and are never persisted raw.
type Document struct {
	// ID is a deterministic identifier derived from the source path and page.
	ID string

	// SourcePath is the file the text was extracted from.
	SourcePath string

	// Text is the extracted UTF-8 text.
	Text string

	// Metadata carries the page number and file type.
	Metadata Metadata
}

// Metadata describes where a Document came from.
type Metadata struct {
	// Page is the 1-based page number for paged formats, 0 otherwise.
	Page int

	// FileType is the lower-cased file extension without the dot ("pdf", "txt").
	FileType string
}

// Chunk is a contiguous span of a Document's text.
type Chunk struct {
	// ID is a deterministic identifier derived from the document ID and start offset.
	ID string

	// DocumentID is the ID of the parent Document.
	DocumentID string

	// SourcePath is copied from the parent Document for display.
	SourcePath string

	// Page is copied from the parent Document metadata.
	Page int

	// Text is the chunk text.
	Text string

	// StartOffset is the rune offset of the first character in the parent text.
	StartOffset int

	// EndOffset is the exclusive rune offset of the end of the chunk.
	EndOffset int
}

// Embedding is a dense vector tagged with the identifier of the model that
// produced it. Vectors from different models are never comparable.
type Embedding struct {
	// Model is the embedding model identifier, e.g. "ollama:nomic-embed-text".
	Model string

	// Values holds the vector components.
	Values []float32
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int { return len(e.Values) }

// IndexEntry pairs a Chunk with its embedding.
type IndexEntry struct {
	// Chunk is the indexed text span.
	Chunk Chunk

	// Embedding is the vector for Chunk.Text.
	Embedding Embedding
}

// Hit is a single retrieval result.
type Hit struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Distance is the cosine distance (1 - cosine similarity). Lower is closer.
	Distance float32

	// Score is the cosine similarity (1 - Distance).
	Score float32
}

// Query is a user request for a generated document.
type Query struct {
	// Text is the task, e.g. "Generate a CV for a software engineer".
	Text string

	// AdditionalContext is optional extra text appended after the retrieved chunks.
	AdditionalContext string
}

// GeneratedDocument is the post-processed output of the generator.
type GeneratedDocument struct {
	// Text is the generated document body.
	Text string

	// Prompt is the exact prompt sent to the model after clamping.
	Prompt string

	// Model identifies the generation backend and model.
	Model string
}

// VectorStore is the interface for building and searching a vector index.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Build replaces the index contents with entries. All entries must share
	// one dimension and one embedding model.
	Build(ctx context.Context, entries []IndexEntry) error

	// Search returns at most k hits ordered by ascending distance. Ties are
	// broken by insertion order. An empty index yields an empty result.
	Search(ctx context.Context, query Embedding, k int) ([]Hit, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelID identifies the backend and model, e.g. "huggingface:all-MiniLM-L6-v2".
	ModelID() string
}

// Retriever is the high-level interface used by the agent to fetch relevant
// context for a query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant chunks for the given query text.
	Retrieve(ctx context.Context, query string, topK int) ([]Hit, error)
}
