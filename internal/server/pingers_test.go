package server

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// stubEmbedder returns fixed vectors or an error.
type stubEmbedder struct {
	vecs [][]float32
	err  error
}

func (s stubEmbedder) Embed(context.Context, []string) ([][]float32, error) { return s.vecs, s.err }
func (s stubEmbedder) ModelID() string                                      { return "test:stub" }

func TestEmbedderPinger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		emb     stubEmbedder
		wantErr bool
	}{
		{"healthy", stubEmbedder{vecs: [][]float32{{0.1, 0.2}}}, false},
		{"backend down", stubEmbedder{err: rag.ErrModelLoad}, true},
		{"empty vector", stubEmbedder{vecs: [][]float32{{}}}, true},
		{"no vectors", stubEmbedder{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := NewEmbedderPinger(tc.emb)
			if p.Name() != "embedder" {
				t.Errorf("name: %q", p.Name())
			}
			if err := p.Ping(context.Background()); (err != nil) != tc.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestIndexPinger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := rag.NewLocalIndex(nil)

	if err := NewIndexPinger(idx, "test:stub").Ping(ctx); err == nil {
		t.Error("empty index should not be ready")
	}

	err := idx.Build(ctx, []rag.IndexEntry{{
		Chunk:     rag.Chunk{ID: "c1", Text: "John Doe"},
		Embedding: rag.Embedding{Model: "test:stub", Values: []float32{1, 0}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := NewIndexPinger(idx, "test:stub").Ping(ctx); err != nil {
		t.Errorf("populated index: %v", err)
	}
	if err := NewIndexPinger(idx, "").Ping(ctx); err != nil {
		t.Errorf("model check disabled: %v", err)
	}
	err = NewIndexPinger(idx, "test:other").Ping(ctx)
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("model mismatch: want ErrDimensionMismatch, got %v", err)
	}
}
