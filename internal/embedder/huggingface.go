package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceEmbedder implements rag.Embedder using the Hugging Face Inference
// API feature-extraction pipeline. It is safe for concurrent use.
type HuggingFaceEmbedder struct {
	// baseURL is the Inference API base (e.g. "https://api-inference.huggingface.co").
	baseURL string
	// token is the optional Bearer access token.
	token string
	// model is the model repository (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	model string
	// client is the shared HTTP client.
	client *http.Client
}

// HuggingFaceConfig holds the settings for constructing a HuggingFaceEmbedder.
type HuggingFaceConfig struct {
	// BaseURL is the Inference API base URL.
	BaseURL string
	// APIToken is the Hugging Face access token. Public models work without one
	// at a lower rate limit.
	APIToken string
	// Model is the sentence-transformers model repository.
	Model string
}

// NewHuggingFaceEmbedder constructs a HuggingFaceEmbedder from the given config.
func NewHuggingFaceEmbedder(cfg *HuggingFaceConfig) *HuggingFaceEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultHuggingFaceBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultHuggingFaceModel
	}
	return &HuggingFaceEmbedder{
		baseURL: base,
		token:   cfg.APIToken,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// ModelID implements rag.Embedder.
func (e *HuggingFaceEmbedder) ModelID() string { return "huggingface:" + e.model }

// hfEmbedRequest is the JSON body sent to the feature-extraction pipeline.
type hfEmbedRequest struct {
	Inputs  []string       `json:"inputs"`
	Options hfEmbedOptions `json:"options"`
}

// hfEmbedOptions asks the API to block while a cold model loads instead of
// returning 503 immediately.
type hfEmbedOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// hfError is the JSON error body returned by the Inference API.
type hfError struct {
	Error string `json:"error"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// Sentence-level outputs are used as is; token-level outputs are mean-pooled.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(hfEmbedRequest{Inputs: texts, Options: hfEmbedOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: marshal request: %w", err)
	}

	url := e.baseURL + "/pipeline/feature-extraction/" + e.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "huggingface embedder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr hfError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, statusError("huggingface embedder", resp, apiErr.Error)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("huggingface embedder: decode response: %w", err)
	}
	embeddings, err := decodeFeatures(raw)
	if err != nil {
		return nil, fmt.Errorf("huggingface embedder: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("huggingface embedder: expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	return embeddings, nil
}

// decodeFeatures accepts either [batch][dim] sentence embeddings or
// [batch][tokens][dim] token embeddings, mean-pooling the latter.
func decodeFeatures(raw json.RawMessage) ([][]float32, error) {
	var sentence [][]float32
	if err := json.Unmarshal(raw, &sentence); err == nil {
		return sentence, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("unexpected feature-extraction shape: %w", err)
	}
	out := make([][]float32, len(tokens))
	for i, toks := range tokens {
		if len(toks) == 0 {
			return nil, fmt.Errorf("input %d produced no token embeddings", i)
		}
		pooled := make([]float32, len(toks[0]))
		for _, tok := range toks {
			if len(tok) != len(pooled) {
				return nil, fmt.Errorf("input %d has ragged token embeddings", i)
			}
			for j, v := range tok {
				pooled[j] += v
			}
		}
		for j := range pooled {
			pooled[j] /= float32(len(toks))
		}
		out[i] = pooled
	}
	return out, nil
}
