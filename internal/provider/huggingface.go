package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// maxErrorBody bounds how much of an error response body is quoted.
const maxErrorBody = 512

// HuggingFaceChatConfig holds the settings for constructing a
// HuggingFaceChatModel.
type HuggingFaceChatConfig struct {
	// BaseURL is the Inference API base URL.
	BaseURL string
	// APIToken is the optional Bearer access token.
	APIToken string
	// Model is the text-generation model repository (e.g. "gpt2").
	Model string
	// Sampling holds the default decoding parameters. Per-call model options
	// (model.WithTemperature, model.WithMaxTokens, model.WithTopP) override
	// the matching fields.
	Sampling Sampling
	// HTTPClient overrides the default client. Its timeout should be at least
	// as long as the generation deadline.
	HTTPClient *http.Client
}

// HuggingFaceChatModel implements model.BaseChatModel on top of the Hugging
// Face Inference API text-generation task. Messages are flattened into one
// prompt since completion models have no chat template. It is safe for
// concurrent use.
type HuggingFaceChatModel struct {
	// baseURL is the Inference API base.
	baseURL string
	// token is the optional Bearer token.
	token string
	// model is the model repository.
	model string
	// sampling holds the construction-time decoding defaults.
	sampling Sampling
	// client is the shared HTTP client.
	client *http.Client
}

// NewHuggingFaceChatModel constructs a HuggingFaceChatModel.
func NewHuggingFaceChatModel(cfg *HuggingFaceChatConfig) *HuggingFaceChatModel {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultHuggingFaceURL
	}
	name := cfg.Model
	if name == "" {
		name = DefaultHuggingFaceModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HuggingFaceChatModel{
		baseURL:  base,
		token:    cfg.APIToken,
		model:    name,
		sampling: cfg.Sampling,
		client:   client,
	}
}

// hfGenerateRequest is the JSON body sent to /models/{model}.
type hfGenerateRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters hfGenParameters `json:"parameters"`
	Options    hfGenOptions    `json:"options"`
}

// hfGenParameters are the text-generation parameters. Zero values are
// omitted so the server default applies.
type hfGenParameters struct {
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty"`
	TopK              int      `json:"top_k,omitempty"`
	TopP              float32  `json:"top_p,omitempty"`
	RepetitionPenalty float32  `json:"repetition_penalty,omitempty"`
	DoSample          bool     `json:"do_sample"`
	ReturnFullText    bool     `json:"return_full_text"`
}

// hfGenOptions asks the API to wait for cold models and skip its cache so
// sampled outputs are not replayed.
type hfGenOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

// hfGeneration is one element of the response array.
type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// hfError is the JSON error body returned by the Inference API.
type hfError struct {
	Error string `json:"error"`
}

// params merges construction-time sampling with per-call options.
func (m *HuggingFaceChatModel) params(opts ...model.Option) hfGenParameters {
	s := m.sampling
	temp, maxTokens, topP := s.Temperature, s.MaxOutputTokens, s.TopP
	common := model.GetCommonOptions(&model.Options{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		TopP:        &topP,
	}, opts...)

	p := hfGenParameters{
		TopK:              s.TopK,
		RepetitionPenalty: s.RepetitionPenalty,
	}
	if common.MaxTokens != nil {
		p.MaxNewTokens = *common.MaxTokens
	}
	if common.TopP != nil {
		p.TopP = *common.TopP
	}
	// Temperature 0 means greedy decoding; the API rejects temperature=0
	// together with do_sample.
	if common.Temperature != nil && *common.Temperature > 0 {
		t := *common.Temperature
		p.Temperature = &t
		p.DoSample = true
	}
	return p
}

// flatten joins message contents into a single completion prompt.
func flatten(input []*schema.Message) string {
	parts := make([]string, 0, len(input))
	for _, msg := range input {
		if msg == nil || msg.Content == "" {
			continue
		}
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Generate implements model.BaseChatModel.
func (m *HuggingFaceChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	body, err := json.Marshal(hfGenerateRequest{
		Inputs:     flatten(input),
		Parameters: m.params(opts...),
		Options:    hfGenOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/models/"+m.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("huggingface: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("huggingface: request timed out: %w: %w", rag.ErrTimeout, err)
		}
		return nil, fmt.Errorf("huggingface: backend unreachable: %w: %w", rag.ErrModelLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var apiErr hfError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusServiceUnavailable:
			return nil, fmt.Errorf("huggingface: HTTP %d: %s: %w", resp.StatusCode, msg, rag.ErrModelLoad)
		default:
			return nil, fmt.Errorf("huggingface: HTTP %d: %s: %w", resp.StatusCode, msg, rag.ErrGeneration)
		}
	}

	var out []hfGeneration
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("huggingface: decode response: %w: %w", rag.ErrGeneration, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("huggingface: empty response: %w", rag.ErrGeneration)
	}

	msg := schema.AssistantMessage(out[0].GeneratedText, nil)
	msg.ResponseMeta = &schema.ResponseMeta{FinishReason: "stop"}
	return msg, nil
}

// Stream implements model.BaseChatModel. The Inference API endpoint used here
// does not stream, so the full generation is delivered as a single chunk.
func (m *HuggingFaceChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// GetType names the component for callback handlers.
func (m *HuggingFaceChatModel) GetType() string { return "HuggingFace" }
