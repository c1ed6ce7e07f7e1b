package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// EmbedderPinger probes the embedding backend by embedding a one-word text.
// The chat model is never called from readiness probes.
type EmbedderPinger struct {
	// embedder is the backend to probe.
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger.
func NewEmbedderPinger(e rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds "ping" and checks that one non-empty vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("%s: %w", p.embedder.ModelID(), err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("%s: empty embedding", p.embedder.ModelID())
	}
	return nil
}

// indexStats is satisfied by *rag.LocalIndex.
type indexStats interface {
	Len() int
	Meta() rag.IndexMeta
}

// IndexPinger reports the local index as not ready until it holds chunks
// built with the configured embedding model.
type IndexPinger struct {
	// index is the local index to inspect.
	index indexStats
	// model is the embedding model ID queries will use.
	model string
}

// NewIndexPinger constructs an IndexPinger for idx. model is the embedder's
// ModelID; an empty model skips the model check.
func NewIndexPinger(idx *rag.LocalIndex, model string) *IndexPinger {
	return &IndexPinger{index: idx, model: model}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping fails when the index is empty or was built by another model.
func (p *IndexPinger) Ping(_ context.Context) error {
	if p.index.Len() == 0 {
		return errors.New("index is empty, run `cvgen index` or POST /api/reindex")
	}
	if meta := p.index.Meta(); p.model != "" && meta.Model != p.model {
		return fmt.Errorf("index built with %q but queries use %q: %w", meta.Model, p.model, rag.ErrDimensionMismatch)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
