package embedder

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments of chat/completion models
// that are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendTEI, BackendOllama:
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: %s requires EMBEDDING_ENDPOINT", c.Backend)
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return errors.New("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return errors.New("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return errors.New("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid: tei, ollama, openai, azure)", c.Backend)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedder: EMBEDDING_DIMENSIONS must be positive, got %d", c.Dimensions)
	}
	return nil
}

// WarnIfSuspicious logs a warning when the model name looks like a chat
// model. Such models embed poorly or not at all.
func (c Config) WarnIfSuspicious(log *slog.Logger) {
	if c.Model != "" && looksLikeChatModel(c.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", c.Model),
			slog.String("hint", "use a dedicated embedding model e.g. "+DefaultTEIModel),
		)
	}
}
