package embedder

import (
	"fmt"
	"os"

	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultHuggingFaceModel   = "sentence-transformers/all-MiniLM-L6-v2"
	defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"
	defaultOllamaModel        = "nomic-embed-text"
	defaultOpenAIModel        = "text-embedding-3-small"

	// defaultHuggingFaceDimensions is the output dimension of all-MiniLM-L6-v2.
	defaultHuggingFaceDimensions = 384
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// embeddingBackends lists the backends that can produce embeddings.
var embeddingBackends = map[string]bool{
	"huggingface": true,
	"ollama":      true,
	"openai":      true,
	"azure":       true,
}

// Backend resolves the effective embedding backend: EMBEDDING_PROVIDER, else
// MODEL_PROVIDER when it names an embedding-capable backend, else huggingface.
func Backend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	if b := os.Getenv("MODEL_PROVIDER"); embeddingBackends[b] {
		return b
	}
	return "huggingface"
}

// DefaultDimensions returns the correct default embedding vector size for the
// given backend name. Callers that need to pre-configure a vector store (e.g.
// Qdrant collection creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := config.Int("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "huggingface":
		return defaultHuggingFaceDimensions
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, see Backend
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS overrides the requested dimensions (openai/azure)
func NewFromEnv() (rag.Embedder, error) {
	backend := Backend()

	switch backend {
	case "huggingface":
		token := config.String("EMBEDDING_API_KEY", os.Getenv("HF_API_TOKEN"))
		return NewHuggingFaceEmbedder(&HuggingFaceConfig{
			BaseURL:  config.String("EMBEDDING_ENDPOINT", config.String("HF_BASE_URL", defaultHuggingFaceBaseURL)),
			APIToken: token,
			Model:    config.String("EMBEDDING_MODEL", defaultHuggingFaceModel),
		}), nil

	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  config.String("EMBEDDING_ENDPOINT", config.String("OLLAMA_HOST", "http://localhost:11434")),
			Model: config.String("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := config.String("EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    config.String("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      config.String("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.Int("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "azure":
		apiKey := config.String("EMBEDDING_API_KEY", os.Getenv("AZURE_OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := config.String("EMBEDDING_ENDPOINT", os.Getenv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      config.String("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.Int("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
			Azure:      true,
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: huggingface, ollama, openai, azure", backend)
	}
}
