package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/cvgen-go/internal/logging"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// Request limits for POST /api/generate.
const (
	maxRequestBytes = 1 << 20
	maxQueryRunes   = 4096
	maxContextRunes = 16384
)

// Outcome label values for the request metrics.
const (
	outcomeOK         = "ok"
	outcomeTimeout    = "timeout"
	outcomeError      = "error"
	outcomeBadRequest = "bad_request"
)

// handleGenerate handles POST /api/generate. The body is a generateRequest;
// the response is a generateResponse or an errorResponse whose status
// reflects the failure kind (see statusFor).
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()
	outcome := outcomeOK
	defer func() {
		s.metrics.generateRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.generateDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		outcome = outcomeBadRequest
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if n := len([]rune(req.Query)); n > maxQueryRunes {
		outcome = outcomeBadRequest
		writeError(w, r, http.StatusBadRequest, "query is too long")
		return
	}
	if n := len([]rune(req.AdditionalContext)); n > maxContextRunes {
		outcome = outcomeBadRequest
		writeError(w, r, http.StatusBadRequest, "additionalContext is too long")
		return
	}

	s.metrics.generateInFlight.Inc()
	defer s.metrics.generateInFlight.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GenerateTimeout)
	defer cancel()

	res, err := s.generator.Generate(ctx, rag.Query{Text: req.Query, AdditionalContext: req.AdditionalContext})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusGatewayTimeout {
			outcome = outcomeTimeout
		} else {
			outcome = outcomeError
		}
		log.Error("generate failed",
			slog.Int("status", status),
			slog.Any("error", err),
		)
		writeError(w, r, status, err.Error())
		return
	}

	resp := generateResponse{
		Text:    res.Document.Text,
		Model:   res.Document.Model,
		Sources: make([]sourceRef, 0, len(res.Hits)),
	}
	if res.Prompt != nil {
		resp.Truncated = res.Prompt.Truncated
	}
	for _, h := range res.Hits {
		resp.Sources = append(resp.Sources, sourceRef{
			Source:  h.Chunk.SourcePath,
			Page:    h.Chunk.Page,
			ChunkID: h.Chunk.ID,
			Score:   h.Score,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleReindex handles POST /api/reindex. Only one rebuild runs at a time;
// a concurrent request receives 409.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.cfg.Indexer == nil {
		writeError(w, r, http.StatusNotImplemented, "reindexing is not configured")
		return
	}
	if !s.reindexMu.TryLock() {
		s.metrics.reindexTotal.WithLabelValues("conflict").Inc()
		writeError(w, r, http.StatusConflict, "a reindex is already running")
		return
	}
	defer s.reindexMu.Unlock()

	rep, err := s.cfg.Indexer.Ingest(r.Context(), s.cfg.DataDir, func(msg string) {
		log.Debug("reindex: " + msg)
	})
	if err != nil {
		s.metrics.reindexTotal.WithLabelValues(outcomeError).Inc()
		log.Error("reindex failed", slog.Any("error", err))
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	s.metrics.reindexTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.indexChunks.Set(float64(rep.Chunks))

	resp := reindexResponse{
		Documents: rep.Documents,
		Chunks:    rep.Chunks,
		Skipped:   make([]string, 0, len(rep.Skipped)),
		Model:     rep.Model,
		Dimension: rep.Dimension,
		ElapsedMS: rep.Elapsed.Milliseconds(),
	}
	for _, sk := range rep.Skipped {
		resp.Skipped = append(resp.Skipped, sk.Path)
	}
	log.Info("reindex complete",
		slog.Int("documents", rep.Documents),
		slog.Int("chunks", rep.Chunks),
		slog.Int("skipped", len(rep.Skipped)),
	)
	writeJSON(w, r, http.StatusOK, resp)
}

// statusFor maps a pipeline error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrGeneration), errors.Is(err, rag.ErrModelLoad):
		return http.StatusBadGateway
	case errors.Is(err, rag.ErrDimensionMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
