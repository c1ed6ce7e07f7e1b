package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/cvgen-go/internal/agent"
	"github.com/54b3r/cvgen-go/internal/budget"
	"github.com/54b3r/cvgen-go/internal/chunker"
	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/embedder"
	"github.com/54b3r/cvgen-go/internal/generator"
	"github.com/54b3r/cvgen-go/internal/ingestion"
	"github.com/54b3r/cvgen-go/internal/loader"
	"github.com/54b3r/cvgen-go/internal/prompt"
	"github.com/54b3r/cvgen-go/internal/provider"
	"github.com/54b3r/cvgen-go/internal/rag"
	"github.com/54b3r/cvgen-go/internal/store"
	"github.com/54b3r/cvgen-go/internal/tracing"
)

// Defaults for settings that are only read by the CLI.
const (
	defaultDataDir          = "data"
	defaultQdrantCollection = "cvgen-chunks"
	defaultEmbedTimeout     = 60 * time.Second
)

// Index backends selectable via INDEX_BACKEND.
const (
	indexSQLite = "sqlite"
	indexQdrant = "qdrant"
)

// vectorIndex is the opened index plus the handles callers need beyond
// rag.VectorStore.
type vectorIndex struct {
	// store is the index used for Build and Search.
	store rag.VectorStore
	// local is set for the sqlite backend.
	local *rag.LocalIndex
	// qdrant is set for the qdrant backend.
	qdrant *qdrant.Client
}

// Close releases the index.
func (v *vectorIndex) Close() error { return v.store.Close() }

// openIndex opens the backend selected by INDEX_BACKEND. For sqlite the
// persisted contents are loaded into memory; for qdrant the collection is
// validated against dim.
func openIndex(ctx context.Context, log *slog.Logger, dim int) (*vectorIndex, error) {
	backend := strings.ToLower(config.String("INDEX_BACKEND", indexSQLite))
	switch backend {
	case indexSQLite:
		path := config.String("INDEX_PATH", store.DefaultDBPath)
		db, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		idx, err := rag.OpenLocalIndex(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("index opened",
			slog.String("backend", backend),
			slog.String("path", path),
			slog.Int("chunks", idx.Len()),
			slog.String("model", idx.Meta().Model),
		)
		return &vectorIndex{store: idx, local: idx}, nil

	case indexQdrant:
		host := config.String("QDRANT_HOST", "localhost")
		port := config.Int("QDRANT_PORT", 6334)
		collection := config.String("QDRANT_COLLECTION", defaultQdrantCollection)
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(dim), //nolint:gosec // dimensions are small positive ints
			APIKey:     config.String("QDRANT_API_KEY", ""),
			UseTLS:     config.Bool("QDRANT_TLS", false),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		log.Info("index opened",
			slog.String("backend", backend),
			slog.String("host", host),
			slog.Int("port", port),
			slog.String("collection", collection),
		)
		return &vectorIndex{store: qs, qdrant: qs.Client()}, nil

	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q, valid values: sqlite, qdrant", backend)
	}
}

// newEmbedder validates the embedding configuration and constructs the
// embedder.
func newEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("model", emb.ModelID()))
	return emb, nil
}

// newPipeline wires loader, chunker and embedder into an ingestion pipeline
// that writes to vs.
func newPipeline(log *slog.Logger, emb rag.Embedder, vs rag.VectorStore) (*ingestion.Pipeline, error) {
	ch, err := chunker.New(
		chunker.WithChunkSize(config.Int("CHUNK_SIZE", chunker.DefaultChunkSize)),
		chunker.WithOverlap(config.Int("CHUNK_OVERLAP", chunker.DefaultChunkOverlap)),
	)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(loader.New(&loader.Config{Logger: log}), ch, emb, vs, &ingestion.Config{
		BatchSize:    config.Int("EMBEDDING_BATCH_SIZE", ingestion.DefaultBatchSize),
		EmbedTimeout: embedTimeout(),
	})
}

// embedTimeout reads EMBED_TIMEOUT.
func embedTimeout() time.Duration {
	return config.Duration("EMBED_TIMEOUT", defaultEmbedTimeout)
}

// queryStack is everything the query phase needs.
type queryStack struct {
	// agent runs retrieve, assemble and generate.
	agent *agent.CVAgent
	// embedder is shared by retrieval and readiness probes.
	embedder rag.Embedder
	// index is the opened vector index.
	index *vectorIndex
	// generator owns the model handle.
	generator *generator.Generator
}

// Close releases the generator and the index.
func (q *queryStack) Close() error {
	genErr := q.generator.Close()
	if err := q.index.Close(); err != nil {
		return err
	}
	return genErr
}

// buildQueryStack constructs the embedder, index, prompt assembler, model
// handle and generator from the environment and wires them into a CVAgent.
func buildQueryStack(ctx context.Context, log *slog.Logger, maxRetries int) (*queryStack, error) {
	emb, err := newEmbedder(log)
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(ctx, log, embedder.DefaultDimensions(embedder.Backend()))
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, idx.store, config.Int("RETRIEVAL_TOP_K", agent.DefaultTopK), embedTimeout())
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	maxInput := config.Int("GEN_MAX_INPUT_TOKENS", budget.DefaultMaxInputTokens)
	tpl := ""
	if path := config.String("PROMPT_TEMPLATE_FILE", ""); path != "" {
		if tpl, err = prompt.LoadTemplate(path); err != nil {
			_ = idx.Close()
			return nil, err
		}
		log.Info("prompt template loaded", slog.String("path", path))
	}
	asm, err := prompt.New(prompt.Config{Template: tpl, MaxInputTokens: maxInput})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("model", providerCfg.ModelName()),
		slog.Float64("temperature", float64(providerCfg.Sampling.Temperature)),
		slog.Int("max_output_tokens", providerCfg.Sampling.MaxOutputTokens),
	)

	gen, err := generator.New(ctx, &generator.Config{
		ChatModel: chatModel,
		ModelName: providerCfg.ModelName(),
		Params: generator.Params{
			MaxInputTokens:    maxInput,
			NoRepeatNgramSize: config.Int("GEN_NO_REPEAT_NGRAM_SIZE", generator.DefaultNoRepeatNgramSize),
			Timeout:           config.Duration("GEN_TIMEOUT", generator.DefaultTimeout),
			MaxRetries:        config.Int("GEN_MAX_RETRIES", maxRetries),
		},
	})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	a, err := agent.New(&agent.Config{
		Retriever: retriever,
		Assembler: asm,
		Generator: gen,
		TopK:      config.Int("RETRIEVAL_TOP_K", agent.DefaultTopK),
	})
	if err != nil {
		_ = gen.Close()
		_ = idx.Close()
		return nil, err
	}
	return &queryStack{agent: a, embedder: emb, index: idx, generator: gen}, nil
}

// setupTracing registers the Langfuse handler when configured and returns
// the flush function to defer.
func setupTracing(log *slog.Logger) func() {
	handler, flush, ok := tracing.Setup()
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}
