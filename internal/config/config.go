// Package config provides layered configuration for junu.
// Precedence, highest first: process environment → .env file → YAML file.
// Every YAML field maps onto exactly one environment variable so the rest of
// the code base only ever reads env vars (see the ConfigFromEnv functions in
// each package).
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. JUNU_CONFIG environment variable
//  3. ~/.junu/config.yaml
//  4. ./junu.yaml
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
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Model configures the generative chat model.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding function shared by ingestion and query.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures the vector index backend.
	Index IndexConfig `yaml:"index"`

	// Ingest configures document loading and chunking.
	Ingest IngestConfig `yaml:"ingest"`

	// Retrieval configures the context retriever policy.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Chat configures prompt construction and answer generation.
	Chat ChatConfig `yaml:"chat"`

	// Speech configures speech-to-text and text-to-speech.
	Speech SpeechConfig `yaml:"speech"`

	// Audio configures where synthesized answers are stored.
	Audio AudioConfig `yaml:"audio"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures conversation history persistence.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds generative model settings.
type ModelConfig struct {
	// Provider selects the backend: openai, azure, ollama, gemini, ark.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string `yaml:"base_url"`
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

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
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
	// Model is the Ark endpoint/model ID.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark API endpoint.
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (tei, ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size where the API allows it.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the index implementation: local or qdrant.
	Backend string `yaml:"backend"`
	// Path is the directory holding the local index.
	Path string `yaml:"path"`
	// Qdrant configures the Qdrant backend.
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant alias queries are served from.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	// DataDir is the root directory of source documents.
	DataDir string `yaml:"data_dir"`
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// Splitter selects the chunking strategy: window or recursive.
	Splitter string `yaml:"splitter"`
	// BatchSize is the number of chunks embedded per request.
	BatchSize int `yaml:"batch_size"`
}

// RetrievalConfig holds context retriever settings.
type RetrievalConfig struct {
	// TopK is the number of nearest chunks fetched per query.
	TopK int `yaml:"top_k"`
	// Threshold is the minimum top score for results to count as context.
	Threshold float32 `yaml:"threshold"`
}

// ChatConfig holds answer generation settings.
type ChatConfig struct {
	// MaxHistory is the number of most recent turns rendered into prompts.
	MaxHistory int `yaml:"max_history"`
	// Timeout bounds retrieval plus generation, as a Go duration string.
	Timeout string `yaml:"timeout"`
	// TokenBudget is the prompt size above which a warning is logged.
	TokenBudget int `yaml:"token_budget"`
}

// SpeechConfig holds speech service settings.
type SpeechConfig struct {
	// Provider selects the speech backend: azure or openai.
	Provider string `yaml:"provider"`
	// Key is the Azure Speech subscription key. Prefer env var AZURE_SPEECH_KEY.
	Key string `yaml:"key"`
	// Region is the Azure Speech service region.
	Region string `yaml:"region"`
	// Language is the recognition/synthesis locale.
	Language string `yaml:"language"`
	// Voice is the default synthesis voice.
	Voice string `yaml:"voice"`
	// Timeout bounds each speech call, as a Go duration string.
	Timeout string `yaml:"timeout"`
}

// AudioConfig holds synthesized-audio storage settings.
type AudioConfig struct {
	// Store selects the backend: disabled, local, minio.
	Store string `yaml:"store"`
	// Dir is the local directory for the local backend.
	Dir string `yaml:"dir"`
	// Minio configures the minio backend.
	Minio MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible object store settings.
type MinioConfig struct {
	// Endpoint is the host:port of the object store.
	Endpoint string `yaml:"endpoint"`
	// AccessKey is the access key ID. Prefer env var MINIO_ACCESS_KEY.
	AccessKey string `yaml:"access_key"`
	// SecretKey is the secret access key. Prefer env var MINIO_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Bucket is the bucket synthesized audio is written to.
	Bucket string `yaml:"bucket"`
	// UseSSL enables HTTPS.
	UseSSL bool `yaml:"use_ssl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the per-IP request rate on the model and speech routes.
	RateLimit float32 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
	// TrustProxy attributes requests to the first X-Forwarded-For hop.
	TrustProxy bool `yaml:"trust_proxy"`
	// APIKey is the Bearer token for API authentication. Prefer env var JUNU_API_KEY.
	APIKey string `yaml:"api_key"`
	// StaticDir is the directory of the built frontend.
	StaticDir string `yaml:"static_dir"`
	// CORSOrigins is a comma-separated list of allowed browser origins.
	CORSOrigins string `yaml:"cors_origins"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" for in-memory history.
	DBPath string `yaml:"db_path"`
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
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_PATH", func(c *Config) string { return c.Index.Path }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Index.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},
	{"INGEST_DATA_DIR", func(c *Config) string { return c.Ingest.DataDir }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"INGEST_SPLITTER", func(c *Config) string { return c.Ingest.Splitter }},
	{"INGEST_BATCH_SIZE", func(c *Config) string { return intStr(c.Ingest.BatchSize) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_THRESHOLD", func(c *Config) string { return float32Str(c.Retrieval.Threshold) }},
	{"PROMPT_MAX_HISTORY", func(c *Config) string { return intStr(c.Chat.MaxHistory) }},
	{"CHAT_TIMEOUT", func(c *Config) string { return c.Chat.Timeout }},
	{"PROMPT_TOKEN_BUDGET", func(c *Config) string { return intStr(c.Chat.TokenBudget) }},
	{"SPEECH_PROVIDER", func(c *Config) string { return c.Speech.Provider }},
	{"AZURE_SPEECH_KEY", func(c *Config) string { return c.Speech.Key }},
	{"AZURE_SERVICE_REGION", func(c *Config) string { return c.Speech.Region }},
	{"SPEECH_LANGUAGE", func(c *Config) string { return c.Speech.Language }},
	{"SPEECH_VOICE", func(c *Config) string { return c.Speech.Voice }},
	{"SPEECH_TIMEOUT", func(c *Config) string { return c.Speech.Timeout }},
	{"AUDIO_STORE", func(c *Config) string { return c.Audio.Store }},
	{"AUDIO_DIR", func(c *Config) string { return c.Audio.Dir }},
	{"MINIO_ENDPOINT", func(c *Config) string { return c.Audio.Minio.Endpoint }},
	{"MINIO_ACCESS_KEY", func(c *Config) string { return c.Audio.Minio.AccessKey }},
	{"MINIO_SECRET_KEY", func(c *Config) string { return c.Audio.Minio.SecretKey }},
	{"MINIO_BUCKET", func(c *Config) string { return c.Audio.Minio.Bucket }},
	{"MINIO_USE_SSL", func(c *Config) string { return boolStr(c.Audio.Minio.UseSSL) }},
	{"JUNU_HOST", func(c *Config) string { return c.Server.Host }},
	{"JUNU_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"JUNU_RATE_LIMIT", func(c *Config) string { return float32Str(c.Server.RateLimit) }},
	{"JUNU_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"JUNU_TRUST_PROXY", func(c *Config) string { return boolStr(c.Server.TrustProxy) }},
	{"JUNU_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"JUNU_STATIC_DIR", func(c *Config) string { return c.Server.StaticDir }},
	{"JUNU_CORS_ORIGINS", func(c *Config) string { return c.Server.CORSOrigins }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"JUNU_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set are left untouched. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// Load applies configuration layers to the process environment: first the
// .env file in the working directory, then the resolved YAML file. Existing
// env vars are never overwritten. Returns the YAML path that was loaded, or
// an empty string if none was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	if err := LoadDotEnv(".env"); err != nil {
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

	applied := apply(&cfg)

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// apply copies non-empty values from cfg into unset env vars and reports how
// many were applied.
func apply(cfg *Config) int {
	applied := 0
	for _, m := range envMapping {
		v := m.value(cfg)
		if v == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		os.Setenv(m.envKey, v)
		applied++
	}
	return applied
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("JUNU_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".junu", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("junu.yaml"); err == nil {
		return "junu.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
