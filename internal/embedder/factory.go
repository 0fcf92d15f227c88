package embedder

import (
	"fmt"
	"time"

	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/rag"
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendTEI    = "tei"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
)

// Default embedding models per backend.
const (
	// DefaultTEIModel is the multilingual sentence-transformers model the
	// index is built with by default. TEI serves exactly one model, so the
	// name is informational for this backend.
	DefaultTEIModel    = "sentence-transformers/paraphrase-multilingual-mpnet-base-v2"
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	defaultTEIEndpoint = "http://localhost:8080"
)

// defaultDimensions maps each backend's default model to its vector size.
var defaultDimensions = map[string]int{
	BackendTEI:    768,
	BackendOllama: 768,
	BackendOpenAI: 1536,
	BackendAzure:  1536,
}

// Config selects and configures an embedding backend.
type Config struct {
	// Backend is one of tei, ollama, openai, azure.
	Backend string
	// Model is the embedding model or deployment name.
	Model string
	// Endpoint is the backend base URL.
	Endpoint string
	// APIKey authenticates against hosted backends.
	APIKey string
	// Dimensions requests a vector size where the API supports it.
	Dimensions int
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Timeout bounds each request.
	Timeout time.Duration
}

// ConfigFromEnv resolves embedding configuration from the environment.
//
//	EMBEDDING_PROVIDER   = tei | ollama | openai | azure (default: tei)
//	EMBEDDING_MODEL      = model name (default depends on backend)
//	EMBEDDING_ENDPOINT   = base URL; falls back to OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//	EMBEDDING_API_KEY    = key; falls back to OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//	EMBEDDING_DIMENSIONS = requested vector size (openai/azure only)
//	EMBEDDING_TIMEOUT    = per-request timeout (default: 60s)
func ConfigFromEnv() Config {
	cfg := Config{
		Backend:    config.String("EMBEDDING_PROVIDER", BackendTEI),
		Model:      config.String("EMBEDDING_MODEL", ""),
		Endpoint:   config.String("EMBEDDING_ENDPOINT", ""),
		APIKey:     config.String("EMBEDDING_API_KEY", ""),
		Dimensions: config.Int("EMBEDDING_DIMENSIONS", 0),
		APIVersion: config.String("AZURE_OPENAI_API_VERSION", "2024-06-01"),
		Timeout:    config.Duration("EMBEDDING_TIMEOUT", 60*time.Second),
	}

	switch cfg.Backend {
	case BackendTEI:
		cfg.Model = orDefault(cfg.Model, DefaultTEIModel)
		cfg.Endpoint = orDefault(cfg.Endpoint, defaultTEIEndpoint)
	case BackendOllama:
		cfg.Model = orDefault(cfg.Model, defaultOllamaModel)
		cfg.Endpoint = orDefault(cfg.Endpoint, config.String("OLLAMA_HOST", "http://localhost:11434"))
	case BackendOpenAI:
		cfg.Model = orDefault(cfg.Model, defaultOpenAIModel)
		cfg.APIKey = orDefault(cfg.APIKey, config.String("OPENAI_API_KEY", ""))
	case BackendAzure:
		cfg.Model = orDefault(cfg.Model, defaultOpenAIModel)
		cfg.APIKey = orDefault(cfg.APIKey, config.String("AZURE_OPENAI_API_KEY", ""))
		cfg.Endpoint = orDefault(cfg.Endpoint, config.String("AZURE_OPENAI_ENDPOINT", ""))
	}
	return cfg
}

// ExpectedDimensions returns the vector size cfg is expected to produce:
// the explicit Dimensions when set, otherwise the backend default.
func (c Config) ExpectedDimensions() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	return defaultDimensions[c.Backend]
}

// CheckIndex reports whether an index built with dim-sized vectors can be
// queried with cfg. Zero on either side means unknown and passes.
func (c Config) CheckIndex(dim int) error {
	want := c.ExpectedDimensions()
	if dim == 0 || want == 0 || dim == want {
		return nil
	}
	return fmt.Errorf("%w: index has %d, %s/%s produces %d; re-run ingest",
		rag.ErrDimensionMismatch, dim, c.Backend, c.Model, want)
}

// New constructs the embedder described by cfg after validating it.
func New(cfg Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendTEI:
		return NewTEIEmbedder(&TEIConfig{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey, Timeout: cfg.Timeout}), nil
	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	case BackendOpenAI:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case BackendAzure:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil
	}
	return nil, fmt.Errorf("embedder: unknown backend %q", cfg.Backend)
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
