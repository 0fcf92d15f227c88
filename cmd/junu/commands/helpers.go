package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/embedder"
	"github.com/54b3r/junu-go/internal/provider"
	"github.com/54b3r/junu-go/internal/rag"
	"github.com/54b3r/junu-go/internal/store"
)

// Index backends accepted by INDEX_BACKEND.
const (
	indexLocal  = "local"
	indexQdrant = "qdrant"
)

// defaultIndexPath is the directory of the local index.
const defaultIndexPath = "chroma"

// openIndex opens the vector index selected by INDEX_BACKEND.
func openIndex(ctx context.Context, log *slog.Logger) (rag.Index, error) {
	switch backend := config.String("INDEX_BACKEND", indexLocal); backend {
	case indexLocal:
		path := config.String("INDEX_PATH", defaultIndexPath)
		idx, err := rag.OpenLocalIndex(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open local index %s: %w", path, err)
		}
		log.Debug("local index opened", slog.String("path", idx.Path()), slog.Int("chunks", idx.Len()))
		return idx, nil

	case indexQdrant:
		cfg := rag.QdrantConfig{
			Host:       config.String("QDRANT_HOST", "localhost"),
			Port:       config.Int("QDRANT_PORT", 6334),
			Collection: config.String("QDRANT_COLLECTION", "junu"),
			APIKey:     config.String("QDRANT_API_KEY", ""),
			UseTLS:     config.Bool("QDRANT_TLS", false),
		}
		qs, err := rag.NewQdrantStore(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		log.Debug("qdrant store ready", slog.String("host", cfg.Host), slog.String("collection", cfg.Collection))
		return qs, nil

	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (valid: local, qdrant)", backend)
	}
}

// buildEmbedder constructs the embedder from the environment and warns about
// settings that usually indicate a mistake.
func buildEmbedder(log *slog.Logger) (rag.Embedder, embedder.Config, error) {
	cfg := embedder.ConfigFromEnv()
	cfg.WarnIfSuspicious(log)
	emb, err := embedder.New(cfg)
	if err != nil {
		return nil, cfg, err
	}
	log.Debug("embedder initialised", slog.String("backend", cfg.Backend), slog.String("model", cfg.Model))
	return emb, cfg, nil
}

// retrieverConfig reads RETRIEVAL_TOP_K, RETRIEVAL_THRESHOLD and
// RETRIEVAL_SEPARATOR.
func retrieverConfig() rag.RetrieverConfig {
	return rag.RetrieverConfig{
		TopK:      config.Int("RETRIEVAL_TOP_K", rag.DefaultTopK),
		Threshold: config.Float32("RETRIEVAL_THRESHOLD", rag.DefaultThreshold),
		Separator: config.String("RETRIEVAL_SEPARATOR", rag.DefaultSeparator),
	}
}

// stack holds the components shared by the answering commands. Close
// releases them in reverse order of construction.
type stack struct {
	embedder  rag.Embedder
	index     rag.Index
	retriever *rag.ContextRetriever
	provider  *provider.Config
	service   *chat.Service
	history   store.ConversationStore
}

// Close releases the history store and the index.
func (s *stack) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	return errors.Join(errs...)
}

// buildRetrieval opens the index and the embedder and wires the retriever.
func buildRetrieval(ctx context.Context, log *slog.Logger) (*stack, error) {
	emb, embCfg, err := buildEmbedder(log)
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(ctx, log)
	if err != nil {
		return nil, err
	}
	if local, ok := idx.(*rag.LocalIndex); ok {
		if err := embCfg.CheckIndex(local.Dimensions()); err != nil {
			log.Warn("index was built with a different embedding model", slog.String("error", err.Error()))
		}
	}
	r, err := rag.NewContextRetriever(emb, idx, retrieverConfig())
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	return &stack{embedder: emb, index: idx, retriever: r}, nil
}

// buildStack wires retrieval, the chat model and the answer service. It
// takes ownership of history, which may be nil for commands that keep
// history themselves.
func buildStack(ctx context.Context, log *slog.Logger, history store.ConversationStore, opts ...chat.Option) (*stack, error) {
	st, err := buildRetrieval(ctx, log)
	if err != nil {
		if history != nil {
			_ = history.Close()
		}
		return nil, err
	}
	st.history = history

	st.provider = provider.ConfigFromEnv()
	m, err := provider.New(ctx, st.provider)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("initialise model provider: %w", err)
	}
	log.Debug("provider initialised",
		slog.String("provider", string(st.provider.Backend)),
		slog.String("model", st.provider.ModelName()),
	)

	st.service, err = chat.NewService(m, st.retriever, history, chat.ConfigFromEnv(), opts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
