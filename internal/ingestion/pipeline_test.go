package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/cvgen-go/internal/chunker"
	"github.com/54b3r/cvgen-go/internal/loader"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// letterEmbedder maps text to a 3-d vector of letter counts and records the
// batch sizes it was called with.
type letterEmbedder struct {
	mu      sync.Mutex
	batches []int
	fail    error
}

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		s = strings.ToLower(s)
		out[i] = []float32{
			float32(strings.Count(s, "e")) + 1,
			float32(strings.Count(s, "o")),
			float32(strings.Count(s, "s")),
		}
	}
	return out, nil
}

func (e *letterEmbedder) ModelID() string { return "test:letters" }

// noPDF fails every PDF so those files land in the skip list.
type noPDF struct{}

func (noPDF) Pages(string) ([]string, error) { return nil, errors.New("no pdf support in test") }

func newPipeline(t *testing.T, emb rag.Embedder, store rag.VectorStore, batch int) *Pipeline {
	t.Helper()
	ld := loader.New(&loader.Config{PDF: noPDF{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ch, err := chunker.New(chunker.WithChunkSize(40), chunker.WithOverlap(5))
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(ld, ch, emb, store, &Config{BatchSize: batch})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNewPipeline_NilDependencies(t *testing.T) {
	t.Parallel()
	ld := loader.New(nil)
	ch, _ := chunker.New()
	emb := &letterEmbedder{}
	idx := rag.NewLocalIndex(nil)

	if _, err := NewPipeline(nil, ch, emb, idx, nil); err == nil {
		t.Error("nil loader should fail")
	}
	if _, err := NewPipeline(ld, nil, emb, idx, nil); err == nil {
		t.Error("nil splitter should fail")
	}
	if _, err := NewPipeline(ld, ch, nil, idx, nil); err == nil {
		t.Error("nil embedder should fail")
	}
	if _, err := NewPipeline(ld, ch, emb, nil, nil); err == nil {
		t.Error("nil store should fail")
	}
}

func TestIngest_BuildsIndexInBatches(t *testing.T) {
	t.Parallel()
	dir := writeDocs(t, map[string]string{
		"experience.txt": "Senior engineer at Acme. Built payment services in Go. Led a team of five engineers.",
		"skills.txt":     "Skills: Go, Kubernetes, PostgreSQL, Terraform, observability.",
		"scan.pdf":       "%PDF-1.4 broken",
		"photo.jpg":      "jpeg",
	})
	emb := &letterEmbedder{}
	idx := rag.NewLocalIndex(nil)
	p := newPipeline(t, emb, idx, 2)

	var msgs []string
	rep, err := p.Ingest(context.Background(), dir, func(m string) { msgs = append(msgs, m) })
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if rep.Documents != 2 {
		t.Errorf("documents: want 2, got %d", rep.Documents)
	}
	if rep.Chunks < 3 || rep.Chunks != idx.Len() {
		t.Errorf("chunks: report %d, index %d", rep.Chunks, idx.Len())
	}
	if len(rep.Skipped) != 1 || filepath.Base(rep.Skipped[0].Path) != "scan.pdf" {
		t.Errorf("skipped: %+v", rep.Skipped)
	}
	if rep.Model != "test:letters" || rep.Dimension != 3 {
		t.Errorf("model/dim: %s/%d", rep.Model, rep.Dimension)
	}
	if meta := idx.Meta(); meta.Model != "test:letters" || meta.Dimension != 3 {
		t.Errorf("index meta: %+v", meta)
	}
	for i, n := range emb.batches {
		if n > 2 {
			t.Errorf("batch %d has %d texts, want <= 2", i, n)
		}
	}
	if len(msgs) == 0 || !strings.Contains(msgs[len(msgs)-1], "indexed") {
		t.Errorf("progress not reported: %v", msgs)
	}
}

func TestIngest_EmptyDirectoryBuildsEmptyIndex(t *testing.T) {
	t.Parallel()
	idx := rag.NewLocalIndex(nil)
	p := newPipeline(t, &letterEmbedder{}, idx, 0)

	rep, err := p.Ingest(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Chunks != 0 || rep.Dimension != 0 || idx.Len() != 0 {
		t.Errorf("want empty index, got %+v", rep)
	}
	hits, err := idx.Search(context.Background(), rag.Embedding{Model: "test:letters", Values: []float32{1, 0, 0}}, 3)
	if err != nil || len(hits) != 0 {
		t.Errorf("empty index search: %v, %v", hits, err)
	}
}

func TestIngest_MissingDirectory(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &letterEmbedder{}, rag.NewLocalIndex(nil), 0)
	_, err := p.Ingest(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	if !errors.Is(err, rag.ErrIO) {
		t.Errorf("want ErrIO, got %v", err)
	}
}

func TestIngest_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	t.Parallel()
	dir := writeDocs(t, map[string]string{"cv.txt": "John Doe, 5 years software engineering experience."})
	idx := rag.NewLocalIndex(nil)

	good := newPipeline(t, &letterEmbedder{}, idx, 0)
	if _, err := good.Ingest(context.Background(), dir, nil); err != nil {
		t.Fatal(err)
	}
	before := idx.Len()

	bad := newPipeline(t, &letterEmbedder{fail: rag.ErrModelLoad}, idx, 0)
	if _, err := bad.Ingest(context.Background(), dir, nil); !errors.Is(err, rag.ErrModelLoad) {
		t.Fatalf("want ErrModelLoad, got %v", err)
	}
	if idx.Len() != before {
		t.Errorf("failed run must not replace the index: before %d, after %d", before, idx.Len())
	}
}

func TestIngest_CancelledContext(t *testing.T) {
	t.Parallel()
	dir := writeDocs(t, map[string]string{"cv.txt": "Go engineer"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPipeline(t, &letterEmbedder{}, rag.NewLocalIndex(nil), 0)
	if _, err := p.Ingest(ctx, dir, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}
