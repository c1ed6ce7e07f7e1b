//go:build integration

package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// TestQdrantStore_Integration exercises QdrantStore against a running Qdrant.
//
// Prerequisites:
//
//	docker run -p 6334:6334 qdrant/qdrant
//
// Run with:
//
//	go test -tags=integration -run TestQdrantStore_Integration ./internal/rag/
//
// Set QDRANT_HOST / QDRANT_PORT if Qdrant is not on localhost:6334.
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	port, _ := strconv.Atoi(os.Getenv("QDRANT_PORT"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := fmt.Sprintf("cvgen-it-%d", time.Now().UnixNano())
	store, err := NewQdrantStore(ctx, &QdrantConfig{Host: host, Port: port, Collection: collection, VectorSize: 3})
	if err != nil {
		t.Fatalf("NewQdrantStore() failed: %v\n\nEnsure Qdrant is running on %s:%d", err, host, port)
	}
	defer store.Close()
	defer func() { _ = store.Client().DeleteCollection(context.Background(), collection) }()

	query := Embedding{Model: "test:unit", Values: []float32{1, 0, 0}}

	// Never built: empty result, not an error.
	hits, err := store.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("Search before Build: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("Search before Build: want empty non-nil hits, got %v", hits)
	}

	doc := DocumentID("cv.txt", 0)
	entries := []IndexEntry{
		{Chunk: Chunk{ID: ChunkID(doc, 0), DocumentID: doc, SourcePath: "cv.txt", Text: "Go engineer"}, Embedding: Embedding{Model: "test:unit", Values: []float32{1, 0, 0}}},
		{Chunk: Chunk{ID: ChunkID(doc, 20), DocumentID: doc, SourcePath: "cv.txt", Text: "Kubernetes", StartOffset: 20}, Embedding: Embedding{Model: "test:unit", Values: []float32{0, 1, 0}}},
	}
	if err := store.Build(ctx, entries); err != nil {
		t.Fatalf("Build: %v", err)
	}

	hits, err = store.Search(ctx, query, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Text != "Go engineer" {
		t.Errorf("top hit = %+v, want the Go engineer chunk", hits)
	}

	_, err = store.Search(ctx, Embedding{Model: "test:unit", Values: []float32{1, 0}}, 1)
	if err == nil {
		t.Error("want dimension mismatch for a 2-d query")
	}
}
