package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/cvgen-go/internal/agent"
	"github.com/54b3r/cvgen-go/internal/ingestion"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// Generator answers one CV query. *agent.CVAgent satisfies it; tests inject
// a fake.
type Generator interface {
	// Generate runs retrieval, prompt assembly and generation for q.
	Generate(ctx context.Context, q rag.Query) (*agent.Result, error)
}

// Indexer rebuilds the vector index from a directory.
// *ingestion.Pipeline satisfies it.
type Indexer interface {
	// Ingest loads dir and replaces the index contents.
	Ingest(ctx context.Context, dir string, progress func(msg string)) (*ingestion.Report, error)
}

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// GenerateTimeout bounds a single /api/generate request end to end.
	// Defaults to 5 minutes if zero.
	GenerateTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// Indexer serves POST /api/reindex. If nil the route returns 501.
	Indexer Indexer
	// DataDir is the source directory rebuilt by POST /api/reindex.
	DataDir string
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Server is the HTTP server that exposes the CV pipeline.
type Server struct {
	// generator answers /api/generate requests.
	generator Generator
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// reindexMu allows one /api/reindex run at a time.
	reindexMu sync.Mutex
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// generateRequest is the JSON body for POST /api/generate.
type generateRequest struct {
	// Query is the generation task. Empty selects the default CV query.
	Query string `json:"query"`
	// AdditionalContext is appended after the retrieved chunks.
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// sourceRef identifies one retrieved chunk in a generate response.
type sourceRef struct {
	// Source is the file the chunk came from.
	Source string `json:"source"`
	// Page is the 1-based PDF page, 0 for text files.
	Page int `json:"page,omitempty"`
	// ChunkID is the deterministic chunk identifier.
	ChunkID string `json:"chunkId"`
	// Score is the cosine similarity to the query.
	Score float32 `json:"score"`
}

// generateResponse is the JSON response for POST /api/generate.
type generateResponse struct {
	// Text is the generated document.
	Text string `json:"text"`
	// Model identifies the generation backend.
	Model string `json:"model"`
	// Sources lists the retrieved chunks in rank order.
	Sources []sourceRef `json:"sources"`
	// Truncated is true when the retrieved context was cut to fit the prompt.
	Truncated bool `json:"truncated"`
}

// reindexResponse is the JSON response for POST /api/reindex.
type reindexResponse struct {
	// Documents is the number of loaded documents.
	Documents int `json:"documents"`
	// Chunks is the number of indexed chunks.
	Chunks int `json:"chunks"`
	// Skipped lists files that failed to parse.
	Skipped []string `json:"skipped"`
	// Model is the embedding model the index was built with.
	Model string `json:"model"`
	// Dimension is the embedding dimension.
	Dimension int `json:"dimension"`
	// ElapsedMS is the build wall time in milliseconds.
	ElapsedMS int64 `json:"elapsedMs"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is a human-readable failure description.
	Error string `json:"error"`
}
