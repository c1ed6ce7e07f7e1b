package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// MetricCosine is the only distance metric the local index supports.
const MetricCosine = "cosine"

// IndexMeta describes a built index. It is persisted next to the entries so a
// later process can validate queries against the model that built the index.
type IndexMeta struct {
	// Model is the embedding model identifier shared by every entry.
	Model string

	// Dimension is the vector length shared by every entry.
	Dimension int

	// Metric is the distance metric; always MetricCosine.
	Metric string

	// BuiltAt is when Build completed.
	BuiltAt time.Time
}

// Persister stores and restores the full contents of a LocalIndex.
// store.SQLiteStore is the production implementation.
type Persister interface {
	// Save atomically replaces the persisted index with meta and entries.
	Save(ctx context.Context, meta IndexMeta, entries []IndexEntry) error

	// Load returns the persisted index. ok is false when nothing has been saved yet.
	Load(ctx context.Context) (meta IndexMeta, entries []IndexEntry, ok bool, err error)

	// Close releases the underlying storage.
	Close() error
}

// LocalIndex is an in-process exact nearest-neighbour index using cosine
// distance. Searches take a read lock and Build takes the write lock, so one
// writer and many concurrent readers are safe.
type LocalIndex struct {
	// mu guards every field below.
	mu sync.RWMutex

	// meta describes the current contents; zero when the index is empty.
	meta IndexMeta

	// entries holds the indexed chunks in insertion order.
	entries []IndexEntry

	// norms caches the L2 norm of each entry vector.
	norms []float64

	// persister is optional; when nil the index lives in memory only.
	persister Persister
}

// NewLocalIndex returns an empty index. When p is non-nil, Build persists
// through it and Close closes it.
func NewLocalIndex(p Persister) *LocalIndex {
	return &LocalIndex{persister: p}
}

// OpenLocalIndex returns an index populated from p. A persister with nothing
// saved yields an empty index.
func OpenLocalIndex(ctx context.Context, p Persister) (*LocalIndex, error) {
	idx := NewLocalIndex(p)
	meta, entries, ok, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: load index: %w", err)
	}
	if !ok {
		return idx, nil
	}
	for i, e := range entries {
		if e.Embedding.Model == "" {
			entries[i].Embedding.Model = meta.Model
		}
	}
	if err := idx.replace(meta, entries); err != nil {
		return nil, fmt.Errorf("rag: load index: %w", err)
	}
	return idx, nil
}

// Build replaces the index contents with a copy of entries and persists them
// when a Persister is configured. Every entry must have the same dimension and
// embedding model as the first one.
func (x *LocalIndex) Build(ctx context.Context, entries []IndexEntry) error {
	meta := IndexMeta{Metric: MetricCosine, BuiltAt: time.Now().UTC()}
	if len(entries) > 0 {
		meta.Model = entries[0].Embedding.Model
		meta.Dimension = entries[0].Embedding.Dimension()
		if meta.Dimension == 0 {
			return fmt.Errorf("rag: build index: entry 0 has an empty vector")
		}
	}

	owned := make([]IndexEntry, len(entries))
	for i, e := range entries {
		if err := checkCompatible(meta.Dimension, meta.Model, e.Embedding); err != nil {
			return fmt.Errorf("rag: build index: entry %d: %w", i, err)
		}
		owned[i] = e
		owned[i].Embedding.Values = slices.Clone(e.Embedding.Values)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.persister != nil {
		if err := x.persister.Save(ctx, meta, owned); err != nil {
			return fmt.Errorf("rag: persist index: %w", err)
		}
	}
	return x.replaceLocked(meta, owned)
}

// Search returns at most k entries closest to query by cosine distance.
func (x *LocalIndex) Search(_ context.Context, query Embedding, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if err := checkCompatible(x.meta.Dimension, x.meta.Model, query); err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	qNorm := norm(query.Values)
	hits := make([]Hit, len(x.entries))
	for i, e := range x.entries {
		d := cosineDistance(query.Values, qNorm, e.Embedding.Values, x.norms[i])
		hits[i] = Hit{Chunk: e.Chunk, Distance: d, Score: 1 - d}
	}
	// Stable sort keeps insertion order among equal distances.
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(a.Distance, b.Distance) })

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Meta returns the description of the current contents.
func (x *LocalIndex) Meta() IndexMeta {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.meta
}

// Len returns the number of indexed entries.
func (x *LocalIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Close releases the persister, if any.
func (x *LocalIndex) Close() error {
	if x.persister == nil {
		return nil
	}
	return x.persister.Close()
}

func (x *LocalIndex) replace(meta IndexMeta, entries []IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.replaceLocked(meta, entries)
}

func (x *LocalIndex) replaceLocked(meta IndexMeta, entries []IndexEntry) error {
	norms := make([]float64, len(entries))
	for i, e := range entries {
		if err := checkCompatible(meta.Dimension, meta.Model, e.Embedding); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		norms[i] = norm(e.Embedding.Values)
	}
	x.meta = meta
	x.entries = entries
	x.norms = norms
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cos(a, b). A zero vector is treated as
// orthogonal to everything (distance 1).
func cosineDistance(a []float32, aNorm float64, b []float32, bNorm float64) float32 {
	if aNorm == 0 || bNorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot/(aNorm*bNorm))
}
