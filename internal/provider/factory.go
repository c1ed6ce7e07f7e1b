package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/cvgen-go/internal/config"
)

// Defaults shared by the factory and the CLI flag help text.
const (
	DefaultBackend           = BackendHuggingFace
	DefaultHuggingFaceModel  = "gpt2"
	DefaultHuggingFaceURL    = "https://api-inference.huggingface.co"
	DefaultTemperature       = 0.3
	DefaultMaxOutputTokens   = 1024
	DefaultRepetitionPenalty = 1.0
)

// ConfigFromEnv resolves a Config from environment variables. MODEL_PROVIDER
// selects the backend; each provider uses its own native credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER = huggingface | ollama | openai | azure | gemini | ark (default: huggingface)
//
//	HuggingFace: HF_API_TOKEN, HF_MODEL (default: gpt2), HF_BASE_URL
//	Ollama:      OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:      OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:       AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	             AZURE_OPENAI_API_VERSION (default: 2024-10-21)
//	Gemini:      GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-2.0-flash)
//	Ark:         ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//
//	Sampling:    GEN_TEMPERATURE (0.3), GEN_MAX_OUTPUT_TOKENS (1024), GEN_TOP_K,
//	             GEN_TOP_P, GEN_REPETITION_PENALTY (1.0)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(config.String("MODEL_PROVIDER", string(DefaultBackend))),
		HuggingFace: ProviderHuggingFace{
			APIToken: config.String("HF_API_TOKEN", ""),
			BaseURL:  config.String("HF_BASE_URL", DefaultHuggingFaceURL),
			Model:    config.String("HF_MODEL", DefaultHuggingFaceModel),
		},
		Ollama: ProviderOllama{
			Host:  config.String("OLLAMA_HOST", "http://localhost:11434"),
			Model: config.String("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  config.String("OPENAI_API_KEY", ""),
			Model:   config.String("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: config.String("OPENAI_BASE_URL", ""),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     config.String("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   config.String("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: config.String("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		},
		Gemini: ProviderGemini{
			APIKey: config.String("GOOGLE_API_KEY", ""),
			Model:  config.String("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Ark: ProviderArk{
			APIKey:  config.String("ARK_API_KEY", ""),
			BaseURL: config.String("ARK_BASE_URL", ""),
			Model:   config.String("ARK_MODEL", ""),
		},
		Sampling: Sampling{
			Temperature:       config.Float32("GEN_TEMPERATURE", DefaultTemperature),
			MaxOutputTokens:   config.Int("GEN_MAX_OUTPUT_TOKENS", DefaultMaxOutputTokens),
			TopK:              config.Int("GEN_TOP_K", 0),
			TopP:              config.Float32("GEN_TOP_P", 0),
			RepetitionPenalty: config.Float32("GEN_REPETITION_PENALTY", DefaultRepetitionPenalty),
		},
	}
}

// NewFromEnv constructs a ChatModel from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (model.BaseChatModel, error) {
	return New(ctx, ConfigFromEnv())
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendHuggingFace:
		return newHuggingFace(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q, valid values: %s", cfg.Backend, validBackends)
	}
}
