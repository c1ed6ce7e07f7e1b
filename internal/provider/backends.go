package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	ollamaapi "github.com/eino-contrib/ollama/api"
	"google.golang.org/genai"
)

// optFloat returns a pointer to v, or nil when v is zero so the backend
// default applies.
func optFloat(v float32) *float32 {
	if v == 0 {
		return nil
	}
	return &v
}

// newHuggingFace constructs a ChatModel backed by the Hugging Face Inference API.
func newHuggingFace(_ context.Context, cfg *Config) (model.BaseChatModel, error) {
	return NewHuggingFaceChatModel(&HuggingFaceChatConfig{
		BaseURL:  cfg.HuggingFace.BaseURL,
		APIToken: cfg.HuggingFace.APIToken,
		Model:    cfg.HuggingFace.Model,
		Sampling: cfg.Sampling,
	}), nil
}

// greedySeed pins the Ollama sampler when decoding is greedy.
const greedySeed = 42

// ollamaOptions maps s onto Ollama request options. Ollama drops zero-valued
// options from the request, so temperature 0 is expressed as top_k=1 with a
// fixed seed.
func ollamaOptions(s Sampling) *ollamaapi.Options {
	opts := &ollamaapi.Options{
		Temperature: s.Temperature,
		NumPredict:  s.MaxOutputTokens,
		TopK:        s.TopK,
		TopP:        s.TopP,
	}
	if s.RepetitionPenalty > 0 {
		opts.RepeatPenalty = s.RepetitionPenalty
	}
	if s.Temperature == 0 {
		opts.TopK = 1
		opts.Seed = greedySeed
	}
	return opts
}

// newOllama constructs a ChatModel backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	v, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
		Options: ollamaOptions(cfg.Sampling),
	})
	return v, err
}

// newOpenAI constructs a ChatModel backed by the OpenAI API.
func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	s := cfg.Sampling
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   &s.MaxOutputTokens,
		Temperature: &s.Temperature,
		TopP:        optFloat(s.TopP),
	})
}

// newAzure constructs a ChatModel backed by Azure OpenAI Service.
// Reasoning deployments get max_completion_tokens and no sampling knobs.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	s := cfg.Sampling
	mc := &einoopenai.ChatModelConfig{
		Model:      cfg.AzureOpenAI.Deployment,
		APIKey:     cfg.AzureOpenAI.APIKey,
		BaseURL:    cfg.AzureOpenAI.Endpoint,
		ByAzure:    true,
		APIVersion: cfg.AzureOpenAI.APIVersion,
		// Use the deployment name as-is; the default mapper strips dots/colons
		// which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if isAzureReasoningModel(cfg.AzureOpenAI.Deployment) {
		mc.MaxCompletionTokens = &s.MaxOutputTokens
	} else {
		mc.MaxTokens = &s.MaxOutputTokens
		mc.Temperature = &s.Temperature
		mc.TopP = optFloat(s.TopP)
	}
	return einoopenai.NewChatModel(ctx, mc) //nolint:wrapcheck // constructor passthrough
}

// newGemini constructs a ChatModel backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	s := cfg.Sampling
	return einogemini.NewChatModel(ctx, &einogemini.Config{ //nolint:wrapcheck // constructor passthrough
		Client:      client,
		Model:       cfg.Gemini.Model,
		MaxTokens:   &s.MaxOutputTokens,
		Temperature: &s.Temperature,
		TopP:        optFloat(s.TopP),
	})
}

// newArk constructs a ChatModel backed by the Volcengine Ark runtime.
func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	s := cfg.Sampling
	return einoark.NewChatModel(ctx, &einoark.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   &s.MaxOutputTokens,
		Temperature: &s.Temperature,
		TopP:        optFloat(s.TopP),
	})
}
