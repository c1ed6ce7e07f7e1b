package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntries() []rag.IndexEntry {
	return []rag.IndexEntry{
		{
			Chunk:     rag.Chunk{ID: "c0", DocumentID: "d0", SourcePath: "cv.pdf", Page: 1, Text: "Go developer", StartOffset: 0, EndOffset: 12},
			Embedding: rag.Embedding{Model: "m", Values: []float32{0.5, -1.25, 3}},
		},
		{
			Chunk:     rag.Chunk{ID: "c1", DocumentID: "d0", SourcePath: "cv.pdf", Page: 1, Text: "Kubernetes", StartOffset: 10, EndOffset: 20},
			Embedding: rag.Embedding{Model: "m", Values: []float32{1, 0, 0}},
		},
	}
}

func Test_Store_LoadBeforeSave(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, entries, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok || len(entries) != 0 {
		t.Errorf("want nothing persisted, got ok=%v entries=%d", ok, len(entries))
	}
}

func Test_Store_SaveAndLoad(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	meta := rag.IndexMeta{Model: "m", Dimension: 3, Metric: rag.MetricCosine, BuiltAt: time.Unix(1700000000, 0).UTC()}
	if err := s.Save(ctx, meta, testEntries()); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, entries, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Model != meta.Model || got.Dimension != meta.Dimension || got.Metric != meta.Metric || !got.BuiltAt.Equal(meta.BuiltAt) {
		t.Errorf("meta: want %+v, got %+v", meta, got)
	}
	want := testEntries()
	if len(entries) != len(want) {
		t.Fatalf("want %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i].Chunk != want[i].Chunk {
			t.Errorf("entry %d chunk: want %+v, got %+v", i, want[i].Chunk, entries[i].Chunk)
		}
		if entries[i].Embedding.Model != "m" {
			t.Errorf("entry %d model: got %q", i, entries[i].Embedding.Model)
		}
		for j, v := range want[i].Embedding.Values {
			if entries[i].Embedding.Values[j] != v {
				t.Errorf("entry %d component %d: want %f, got %f", i, j, v, entries[i].Embedding.Values[j])
			}
		}
	}
}

func Test_Store_SaveReplacesPreviousIndex(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, rag.IndexMeta{Model: "m", Dimension: 3, Metric: rag.MetricCosine}, testEntries()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := []rag.IndexEntry{{
		Chunk:     rag.Chunk{ID: "n0", Text: "new"},
		Embedding: rag.Embedding{Model: "m2", Values: []float32{1, 2}},
	}}
	if err := s.Save(ctx, rag.IndexMeta{Model: "m2", Dimension: 2, Metric: rag.MetricCosine}, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	meta, entries, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Model != "m2" || meta.Dimension != 2 {
		t.Errorf("meta not replaced: %+v", meta)
	}
	if len(entries) != 1 || entries[0].Chunk.ID != "n0" {
		t.Errorf("entries not replaced: %+v", entries)
	}
}

func Test_Store_ReopenFromDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx := rag.NewLocalIndex(s)
	if err := idx.Build(ctx, testEntries()); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened, err := rag.OpenLocalIndex(ctx, s2)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	hits, err := reopened.Search(ctx, rag.Embedding{Model: "m", Values: []float32{2, 0, 0}}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "c1" {
		t.Errorf("want c1, got %+v", hits)
	}
}

func Test_Store_DecodeRejectsTruncatedBlob(t *testing.T) {
	t.Parallel()
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("want error for 3-byte blob")
	}
}
