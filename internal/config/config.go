// Package config provides layered configuration for cvgen.
// Configuration is loaded with this precedence, lowest first:
// defaults, YAML file, .env file, process environment. Values from the YAML
// and .env files are applied as environment variables, and components read
// their settings through the typed helpers in env.go.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CVGEN_CONFIG environment variable
//  3. ~/.cvgen/config.yaml
//  4. ./cvgen.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the text-generation model provider.
	Model ModelConfig `yaml:"model"`

	// Generation configures sampling and limits for the generator.
	Generation GenerationConfig `yaml:"generation"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Chunking configures the document splitter.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Index configures the vector index backend and retrieval.
	Index IndexConfig `yaml:"index"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Data configures the source document directory.
	Data DataConfig `yaml:"data"`

	// Prompt configures the prompt template.
	Prompt PromptConfig `yaml:"prompt"`

	// Output configures rendered output files.
	Output OutputConfig `yaml:"output"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds text-generation provider settings.
type ModelConfig struct {
	// Provider selects the backend: huggingface, ollama, openai, azure, gemini, ark.
	Provider string `yaml:"provider"`

	// HuggingFace holds Hugging Face Inference API settings.
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`

	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`
}

// HuggingFaceConfig holds Hugging Face Inference API settings.
type HuggingFaceConfig struct {
	// APIToken is the access token. Prefer env var HF_API_TOKEN.
	APIToken string `yaml:"api_token"`
	// Model is the text-generation model repository.
	Model string `yaml:"model"`
	// BaseURL overrides the Inference API endpoint.
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint or model ID.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark endpoint.
	BaseURL string `yaml:"base_url"`
}

// GenerationConfig holds sampling parameters and limits.
type GenerationConfig struct {
	// Temperature controls randomness; 0 selects greedy decoding. A pointer
	// so an explicit 0 in YAML is distinguishable from "unset".
	Temperature *float32 `yaml:"temperature"`
	// MaxOutputTokens caps generated tokens.
	MaxOutputTokens int `yaml:"max_output_tokens"`
	// MaxInputTokens caps the prompt size.
	MaxInputTokens int `yaml:"max_input_tokens"`
	// TopK limits sampling to the k most likely tokens (0 disables).
	TopK int `yaml:"top_k"`
	// TopP is the nucleus sampling threshold (0 disables).
	TopP float32 `yaml:"top_p"`
	// NoRepeatNgramSize forbids repeated n-grams of this size (0 disables).
	NoRepeatNgramSize *int `yaml:"no_repeat_ngram_size"`
	// RepetitionPenalty discourages repeated tokens (1 disables).
	RepetitionPenalty float32 `yaml:"repetition_penalty"`
	// Timeout bounds one generation call, e.g. "2m".
	Timeout string `yaml:"timeout"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (huggingface, ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// BatchSize is the number of chunks embedded per request.
	BatchSize int `yaml:"batch_size"`
	// Timeout bounds one embedding call, e.g. "60s".
	Timeout string `yaml:"timeout"`
}

// ChunkingConfig holds splitter settings.
type ChunkingConfig struct {
	// Size is the maximum chunk size in characters.
	Size int `yaml:"size"`
	// Overlap is the maximum overlap between consecutive chunks.
	Overlap int `yaml:"overlap"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the index implementation: sqlite or qdrant.
	Backend string `yaml:"backend"`
	// Path is the SQLite index file for the sqlite backend.
	Path string `yaml:"path"`
	// TopK is the number of chunks retrieved per query.
	TopK int `yaml:"top_k"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// DataConfig holds input settings.
type DataConfig struct {
	// Dir is the directory of source PDFs and text files.
	Dir string `yaml:"dir"`
}

// PromptConfig holds prompt template settings.
type PromptConfig struct {
	// TemplateFile is a file whose contents replace the built-in template.
	TemplateFile string `yaml:"template_file"`
}

// OutputConfig holds output file settings.
type OutputConfig struct {
	// TextPath is where the plain-text CV is written. "-" writes to stdout.
	TextPath string `yaml:"text_path"`
	// PDFPath is where the PDF CV is written; empty disables PDF output.
	PDFPath string `yaml:"pdf_path"`
	// Encoding is the text output encoding: utf-8 or windows-1252.
	Encoding string `yaml:"encoding"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CVGEN_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"HF_API_TOKEN", func(c *Config) string { return c.Model.HuggingFace.APIToken }},
	{"HF_MODEL", func(c *Config) string { return c.Model.HuggingFace.Model }},
	{"HF_BASE_URL", func(c *Config) string { return c.Model.HuggingFace.BaseURL }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GEN_TEMPERATURE", func(c *Config) string { return float32PtrStr(c.Generation.Temperature) }},
	{"GEN_MAX_OUTPUT_TOKENS", func(c *Config) string { return intStr(c.Generation.MaxOutputTokens) }},
	{"GEN_MAX_INPUT_TOKENS", func(c *Config) string { return intStr(c.Generation.MaxInputTokens) }},
	{"GEN_TOP_K", func(c *Config) string { return intStr(c.Generation.TopK) }},
	{"GEN_TOP_P", func(c *Config) string { return float32Str(c.Generation.TopP) }},
	{"GEN_NO_REPEAT_NGRAM_SIZE", func(c *Config) string { return intPtrStr(c.Generation.NoRepeatNgramSize) }},
	{"GEN_REPETITION_PENALTY", func(c *Config) string { return float32Str(c.Generation.RepetitionPenalty) }},
	{"GEN_TIMEOUT", func(c *Config) string { return c.Generation.Timeout }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBED_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_PATH", func(c *Config) string { return c.Index.Path }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Index.TopK) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"DATA_DIR", func(c *Config) string { return c.Data.Dir }},
	{"PROMPT_TEMPLATE_FILE", func(c *Config) string { return c.Prompt.TemplateFile }},
	{"OUTPUT_TEXT_PATH", func(c *Config) string { return c.Output.TextPath }},
	{"OUTPUT_PDF_PATH", func(c *Config) string { return c.Output.PDFPath }},
	{"OUTPUT_ENCODING", func(c *Config) string { return c.Output.Encoding }},
	{"CVGEN_HOST", func(c *Config) string { return c.Server.Host }},
	{"CVGEN_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CVGEN_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path (default ".env") into the
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string, log *slog.Logger) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("config: no .env file found", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded .env file", slog.String("path", path))
	return nil
}

// Load applies the .env file and then the YAML config file as environment
// variables. Existing env vars are never overwritten (env always wins), and
// .env values win over YAML values. Returns the YAML path that was loaded,
// or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	if err := LoadDotEnv(os.Getenv("CVGEN_DOTENV"), log); err != nil {
		return "", err
	}

	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CVGEN_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".cvgen", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("cvgen.yaml"); err == nil {
		return "cvgen.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// intPtrStr converts an optional int to string; nil yields "".
func intPtrStr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float32PtrStr converts an optional float32 to string; nil yields "" and
// an explicit zero yields "0".
func float32PtrStr(v *float32) string {
	if v == nil {
		return ""
	}
	if *v == 0 {
		return "0"
	}
	return float32Str(*v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
