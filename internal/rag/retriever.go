package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Retrieval defaults.
const (
	DefaultTopK      = 3
	DefaultThreshold = 0.3
	DefaultSeparator = "\n---\n"
)

// Context is the result of a retrieval. An empty Text is the "no relevant
// context" outcome; callers substitute their own fallback message for it.
type Context struct {
	// Text is the joined chunk text, or "" when nothing relevant was found.
	Text string
	// Documents are the chunks that made up Text, best first.
	Documents []Document
}

// Found reports whether relevant context was retrieved.
func (c Context) Found() bool { return c.Text != "" }

// RetrieverConfig tunes the retrieval policy. Zero fields take the defaults.
type RetrieverConfig struct {
	// TopK is the number of nearest chunks fetched.
	TopK int
	// Threshold is the minimum score the best chunk must reach.
	Threshold float32
	// Separator joins chunk texts.
	Separator string
}

// ContextRetriever embeds a question, searches the vector store and applies
// the relevance threshold. It is safe for concurrent use.
type ContextRetriever struct {
	embedder Embedder
	store    VectorStore
	cfg      RetrieverConfig
}

// NewContextRetriever constructs a ContextRetriever. The embedder must be the
// same model that built the index.
func NewContextRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) (*ContextRetriever, error) {
	if embedder == nil {
		return nil, errors.New("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, errors.New("rag: store must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	return &ContextRetriever{embedder: embedder, store: store, cfg: cfg}, nil
}

// Config returns the resolved retrieval policy.
func (r *ContextRetriever) Config() RetrieverConfig { return r.cfg }

// Search embeds query and returns the raw top-k documents, best first,
// without applying the threshold.
func (r *ContextRetriever) Search(ctx context.Context, query string) ([]Document, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, errors.New("rag: embedder returned empty result for query")
	}

	docs, err := r.store.Search(ctx, embeddings[0], r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}

// Retrieve returns the joined text of the top-k chunks, or an empty Context
// when the index has no results or the best score is below the threshold.
func (r *ContextRetriever) Retrieve(ctx context.Context, query string) (Context, error) {
	docs, err := r.Search(ctx, query)
	if err != nil {
		return Context{}, err
	}
	if len(docs) == 0 || docs[0].Score < r.cfg.Threshold {
		return Context{}, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	return Context{Text: strings.Join(texts, r.cfg.Separator), Documents: docs}, nil
}
