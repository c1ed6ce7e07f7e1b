package rag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultRetriever implements the Retriever interface by combining an Embedder
// and a VectorStore. It embeds the query at retrieval time, tags the vector
// with the embedder's model ID and delegates similarity search to the store.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int

	// timeout bounds the query embedding call; zero means no extra deadline.
	timeout time.Duration
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and VectorStore.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int, timeout time.Duration) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
		timeout:     timeout,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant chunks.
// If topK is 0 the defaultTopK configured at construction time is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vec, err := EmbedOne(ctx, r.embedder, query, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	hits, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return hits, nil
}

// EmbedOne embeds a single text with an optional deadline and tags the result
// with the embedder's model ID.
func EmbedOne(ctx context.Context, e Embedder, text string, timeout time.Duration) (Embedding, error) {
	vecs, err := EmbedBatch(ctx, e, []string{text}, timeout)
	if err != nil {
		return Embedding{}, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with an optional deadline. A deadline overrun is
// reported as ErrTimeout.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, timeout time.Duration) ([]Embedding, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := e.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("embed %d texts after %s: %w", len(texts), timeout, ErrTimeout)
		}
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(raw), len(texts))
	}

	model := e.ModelID()
	out := make([]Embedding, len(raw))
	for i, v := range raw {
		out[i] = Embedding{Model: model, Values: v}
	}
	return out, nil
}
