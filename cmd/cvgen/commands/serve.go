package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/logging"
	"github.com/54b3r/cvgen-go/internal/server"
)

// serveMaxRetries is the generation retry budget per HTTP request. Kept
// below the CLI value so a dead backend fails fast behind the API.
const serveMaxRetries = 1

// NewServeCmd constructs the `cvgen serve` command, which starts the HTTP
// API over an already built index.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cvgen HTTP API",
		Long: `Start the cvgen HTTP API.

Routes:
  POST /api/generate   {"query": "...", "additionalContext": "..."}
  POST /api/reindex    rebuild the index from DATA_DIR
  GET  /api/health     liveness
  GET  /api/ready      embedder, index and Qdrant readiness
  GET  /metrics        Prometheus metrics

Set CVGEN_API_KEY to require "Authorization: Bearer <key>" on the POST routes.

Examples:
  cvgen serve
  cvgen serve --port 9090
  MODEL_PROVIDER=ollama cvgen serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush := setupTracing(log)
			defer flush()

			qs, err := buildQueryStack(ctx, log, config.Int("GEN_MAX_RETRIES", serveMaxRetries))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = qs.Close() }()

			indexer, err := newPipeline(log, qs.embedder, qs.index.store)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{server.NewEmbedderPinger(qs.embedder)}
			if qs.index.local != nil {
				pingers = append(pingers, server.NewIndexPinger(qs.index.local, qs.embedder.ModelID()))
			}
			if qs.index.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(qs.index.qdrant))
			}

			if !cmd.Flags().Changed("host") {
				host = config.String("CVGEN_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("CVGEN_PORT", port)
			}

			srv, err := server.New(qs.agent, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				Indexer:         indexer,
				DataDir:         config.String("DATA_DIR", defaultDataDir),
				GenerateTimeout: config.Duration("CVGEN_REQUEST_TIMEOUT", 0),
				APIKey:          config.String("CVGEN_API_KEY", ""),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting",
				slog.String("host", host),
				slog.Int("port", port),
				slog.Int("pingers", len(pingers)),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default: $CVGEN_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default: $CVGEN_PORT)")

	return cmd
}
