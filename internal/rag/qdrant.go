package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds the number of points sent in one Upsert call.
const upsertBatchSize = 256

// Payload keys stored on every Qdrant point.
const (
	payloadText      = "text"
	payloadDocID     = "document_id"
	payloadSource    = "source"
	payloadPage      = "page"
	payloadStart     = "start"
	payloadEnd       = "end"
	payloadSeq       = "seq"
	payloadEmbedding = "embedding_model"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the expected embedding dimensionality. When the collection
	// already exists its configured size must match.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu serialises Build against Search.
	mu sync.RWMutex

	// model is the embedding model of the last Build, empty when unknown.
	model string

	// exists is set once the collection is known to exist. Until then
	// Search behaves like an empty index.
	exists atomic.Bool
}

// NewQdrantStore connects to Qdrant and validates the vector size of an
// existing collection. A missing collection is created by the first Build.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "cvgen"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.checkCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// checkCollection compares an existing collection's vector size with cfg.VectorSize.
func (s *QdrantStore) checkCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	s.exists.Store(true)
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to read collection %q: %w", s.cfg.Collection, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if s.cfg.VectorSize == 0 {
		s.cfg.VectorSize = size
		return nil
	}
	if size != s.cfg.VectorSize {
		return fmt.Errorf("qdrant: collection %q: %w", s.cfg.Collection,
			&DimensionMismatchError{WantDim: int(s.cfg.VectorSize), GotDim: int(size)})
	}
	return nil
}

// Build drops and recreates the collection, then upserts every entry. The
// insertion sequence number is stored in the payload to break score ties.
func (s *QdrantStore) Build(ctx context.Context, entries []IndexEntry) error {
	var model string
	var dim int
	if len(entries) > 0 {
		model = entries[0].Embedding.Model
		dim = entries[0].Embedding.Dimension()
	}
	for i, e := range entries {
		if err := checkCompatible(dim, model, e.Embedding); err != nil {
			return fmt.Errorf("qdrant: build: entry %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dim == 0 {
		dim = int(s.cfg.VectorSize)
	}
	if err := s.recreateCollection(ctx, uint64(dim)); err != nil {
		return err
	}

	for start := 0; start < len(entries); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			c := entries[i].Chunk
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectors(entries[i].Embedding.Values...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadText:      c.Text,
					payloadDocID:     c.DocumentID,
					payloadSource:    c.SourcePath,
					payloadPage:      c.Page,
					payloadStart:     c.StartOffset,
					payloadEnd:       c.EndOffset,
					payloadSeq:       i,
					payloadEmbedding: model,
				}),
			})
		}
		wait := true
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}

	s.cfg.VectorSize = uint64(dim)
	s.model = model
	s.exists.Store(true)
	return nil
}

func (s *QdrantStore) recreateCollection(ctx context.Context, size uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err)
		}
		s.exists.Store(false)
	}
	if size == 0 {
		return fmt.Errorf("qdrant: cannot create collection %q without a vector size", s.cfg.Collection)
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// collectionReady reports whether the collection exists, asking Qdrant again
// while it has not been seen so a build from another process is picked up.
func (s *QdrantStore) collectionReady(ctx context.Context) (bool, error) {
	if s.exists.Load() {
		return true, nil
	}
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		s.exists.Store(true)
	}
	return exists, nil
}

// Search performs a cosine similarity search and returns the top-k results
// ordered by ascending distance, ties broken by insertion sequence. A
// collection that was never built yields no hits.
func (s *QdrantStore) Search(ctx context.Context, query Embedding, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		return []Hit{}, nil
	}
	ready, err := s.collectionReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return []Hit{}, nil
	}
	if s.cfg.VectorSize != 0 && uint64(query.Dimension()) != s.cfg.VectorSize {
		return nil, fmt.Errorf("qdrant: search: %w",
			&DimensionMismatchError{WantDim: int(s.cfg.VectorSize), GotDim: query.Dimension()})
	}
	if s.model != "" && s.model != query.Model {
		return nil, fmt.Errorf("qdrant: search: %w", checkCompatible(query.Dimension(), s.model, query))
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query.Values...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	type ranked struct {
		hit Hit
		seq int64
	}
	out := make([]ranked, 0, len(results))
	for _, r := range results {
		p := r.GetPayload()
		if m := p[payloadEmbedding].GetStringValue(); m != query.Model {
			return nil, fmt.Errorf("qdrant: search: %w",
				&DimensionMismatchError{WantDim: query.Dimension(), GotDim: query.Dimension(), WantModel: m, GotModel: query.Model})
		}
		out = append(out, ranked{
			seq: p[payloadSeq].GetIntegerValue(),
			hit: Hit{
				Chunk: Chunk{
					ID:          r.GetId().GetUuid(),
					DocumentID:  p[payloadDocID].GetStringValue(),
					SourcePath:  p[payloadSource].GetStringValue(),
					Page:        int(p[payloadPage].GetIntegerValue()),
					Text:        p[payloadText].GetStringValue(),
					StartOffset: int(p[payloadStart].GetIntegerValue()),
					EndOffset:   int(p[payloadEnd].GetIntegerValue()),
				},
				Score:    r.GetScore(),
				Distance: 1 - r.GetScore(),
			},
		})
	}
	slices.SortStableFunc(out, func(a, b ranked) int {
		if c := cmp.Compare(a.hit.Distance, b.hit.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	hits := make([]Hit, len(out))
	for i, r := range out {
		hits[i] = r.hit
	}
	return hits, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
