package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/embedder"
	"github.com/54b3r/cvgen-go/internal/logging"
)

// NewIndexCmd constructs the `cvgen index` command, which runs the build
// phase: load every document in the data directory, chunk it, embed the
// chunks and replace the index contents.
func NewIndexCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from the data directory",
		Long: `Load every .pdf and .txt file directly inside the data directory, split
the text into overlapping chunks, embed them and replace the index contents.

Files that cannot be parsed are skipped and listed. The previous index is
kept if embedding or storage fails.

Environment variables:
  DATA_DIR             Source directory (default: data)
  INDEX_BACKEND        sqlite (default) or qdrant
  INDEX_PATH           SQLite index file (default: cvgen_index/index.db)
  QDRANT_*             Qdrant connection when INDEX_BACKEND=qdrant
  EMBEDDING_PROVIDER   huggingface (default), ollama, openai, azure
  CHUNK_SIZE / CHUNK_OVERLAP   Splitter settings (default: 500 / 50)

Examples:
  cvgen index
  cvgen index --data ./my-documents
  INDEX_BACKEND=qdrant cvgen index`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if dataDir == "" {
				dataDir = config.String("DATA_DIR", defaultDataDir)
			}

			emb, err := newEmbedder(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			idx, err := openIndex(ctx, log, embedder.DefaultDimensions(embedder.Backend()))
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer func() { _ = idx.Close() }()

			pipeline, err := newPipeline(log, emb, idx.store)
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			rep, err := pipeline.Ingest(ctx, dataDir, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			for _, s := range rep.Skipped {
				log.Warn("index: file skipped", slog.String("path", s.Path), slog.Any("error", s.Err))
			}
			log.Info("index complete",
				slog.String("data_dir", dataDir),
				slog.Int("documents", rep.Documents),
				slog.Int("chunks", rep.Chunks),
				slog.Int("skipped", len(rep.Skipped)),
				slog.String("model", rep.Model),
				slog.Int("dimension", rep.Dimension),
				slog.Duration("elapsed", rep.Elapsed),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %d documents (%d skipped)\n",
				rep.Chunks, rep.Documents, len(rep.Skipped))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataDir, "data", "d", "", "Source document directory (default: $DATA_DIR or ./data)")

	return cmd
}
