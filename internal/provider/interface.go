// Package provider defines the backend configuration and factory for
// selecting and constructing text-generation models at runtime.
// Supported backends: Hugging Face Inference API, Ollama, OpenAI,
// Azure OpenAI, Google Gemini, Volcengine Ark.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendHuggingFace selects the Hugging Face Inference API text-generation task.
	BackendHuggingFace Backend = "huggingface"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
)

// validBackends is used in error messages.
const validBackends = "huggingface, ollama, openai, azure, gemini, ark"

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the block matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	HuggingFace ProviderHuggingFace
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk

	// Sampling holds the decoding parameters shared by every backend.
	Sampling Sampling
}

// ProviderHuggingFace configures the Hugging Face Inference API backend.
type ProviderHuggingFace struct {
	// APIToken is the optional access token (HF_API_TOKEN).
	APIToken string
	// BaseURL is the Inference API base (HF_BASE_URL).
	BaseURL string
	// Model is the model repository (HF_MODEL, default "gpt2").
	Model string
}

// ProviderOllama configures a local Ollama instance.
type ProviderOllama struct {
	// Host is the Ollama base URL (OLLAMA_HOST).
	Host string
	// Model is the pulled model tag (OLLAMA_MODEL).
	Model string
}

// ProviderOpenAI configures the OpenAI API.
type ProviderOpenAI struct {
	// APIKey is the API key (OPENAI_API_KEY).
	APIKey string
	// Model is the chat model name (OPENAI_MODEL).
	Model string
	// BaseURL optionally points at an OpenAI-compatible endpoint (OPENAI_BASE_URL).
	BaseURL string
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	// APIKey is the resource key (AZURE_OPENAI_API_KEY).
	APIKey string
	// Endpoint is the resource endpoint (AZURE_OPENAI_ENDPOINT).
	Endpoint string
	// Deployment is the deployment name (AZURE_OPENAI_DEPLOYMENT).
	Deployment string
	// APIVersion is the REST API version (AZURE_OPENAI_API_VERSION).
	APIVersion string
}

// ProviderGemini configures Google Gemini.
type ProviderGemini struct {
	// APIKey is the AI Studio key (GOOGLE_API_KEY).
	APIKey string
	// Model is the Gemini model name (GEMINI_MODEL).
	Model string
}

// ProviderArk configures the Volcengine Ark runtime.
type ProviderArk struct {
	// APIKey is the Ark API key (ARK_API_KEY).
	APIKey string
	// BaseURL overrides the regional endpoint (ARK_BASE_URL).
	BaseURL string
	// Model is the Ark endpoint or model ID (ARK_MODEL).
	Model string
}

// Sampling holds decoding parameters. Zero values for TopK, TopP and
// RepetitionPenalty mean "backend default". Sampling is fixed when the model
// handle is constructed.
type Sampling struct {
	// Temperature controls randomness. 0 requests greedy decoding.
	Temperature float32
	// MaxOutputTokens caps the number of generated tokens.
	MaxOutputTokens int
	// TopK restricts sampling to the K most likely tokens.
	TopK int
	// TopP is the nucleus sampling threshold.
	TopP float32
	// RepetitionPenalty discourages repeated tokens; 1.0 is neutral.
	RepetitionPenalty float32
}

// Validate checks the sampling parameters.
func (s Sampling) Validate() error {
	switch {
	case s.Temperature < 0 || s.Temperature > 2:
		return fmt.Errorf("provider: temperature must be within [0, 2], got %v (GEN_TEMPERATURE)", s.Temperature)
	case s.MaxOutputTokens <= 0:
		return fmt.Errorf("provider: max output tokens must be > 0, got %d (GEN_MAX_OUTPUT_TOKENS)", s.MaxOutputTokens)
	case s.TopK < 0:
		return fmt.Errorf("provider: top_k must be >= 0, got %d (GEN_TOP_K)", s.TopK)
	case s.TopP < 0 || s.TopP > 1:
		return fmt.Errorf("provider: top_p must be within [0, 1], got %v (GEN_TOP_P)", s.TopP)
	case s.RepetitionPenalty != 0 && s.RepetitionPenalty < 1:
		return fmt.Errorf("provider: repetition penalty must be >= 1, got %v (GEN_REPETITION_PENALTY)", s.RepetitionPenalty)
	}
	return nil
}

// Validate checks that the block for the selected backend carries every
// required field, naming the env var to set in the error.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendHuggingFace:
		if c.HuggingFace.Model == "" {
			return fmt.Errorf("provider: huggingface backend requires HF_MODEL")
		}
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: ollama backend requires OLLAMA_HOST")
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: ollama backend requires OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: openai backend requires OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: openai backend requires OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: azure backend requires AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: azure backend requires AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: azure backend requires AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: gemini backend requires GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: gemini backend requires GEMINI_MODEL")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ark backend requires ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ark backend requires ARK_MODEL")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: %s", c.Backend, validBackends)
	}
	return c.Sampling.Validate()
}

// ModelName returns a human-readable "backend:model" identifier for logs and
// the generated document metadata.
func (c *Config) ModelName() string {
	var name string
	switch c.Backend {
	case BackendHuggingFace:
		name = c.HuggingFace.Model
	case BackendOllama:
		name = c.Ollama.Model
	case BackendOpenAI:
		name = c.OpenAI.Model
	case BackendAzure:
		name = c.AzureOpenAI.Deployment
	case BackendGemini:
		name = c.Gemini.Model
	case BackendArk:
		name = c.Ark.Model
	}
	return string(c.Backend) + ":" + name
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. Those reject temperature and top_p and
// take max_completion_tokens instead of max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
