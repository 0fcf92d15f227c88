// Package rag defines the retrieval side of junu: the vector index that
// stores chunk embeddings and the context retriever that turns a question
// into grounding text. Concrete backends (a local SQLite file, Qdrant)
// satisfy these interfaces so the answer pipeline never depends on one.
package rag

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a query or upsert vector does not
// match the dimension the index was built with. It usually means ingestion
// and query are configured with different embedding models.
var ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

// Document is a unit of stored or retrieved knowledge: one chunk of a
// source file.
type Document struct {
	// ID is the unique identifier for this chunk.
	ID string

	// Content is the raw chunk text.
	Content string

	// Source is the path of the originating file, relative to the data dir.
	Source string

	// StartIndex is the chunk's offset (in characters) into its source file.
	StartIndex int

	// Metadata holds inferred attributes (title, category, file name).
	Metadata map[string]string

	// Score is the relevance assigned during retrieval, in [0, 1].
	Score float32
}

// Writer accepts documents with their pre-computed embeddings.
// embeddings[i] is the vector for docs[i].
type Writer interface {
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error
}

// VectorStore persists and searches document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	Writer

	// Search returns up to topK documents ranked by descending score.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Clear removes every document.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Rebuilder replaces an index wholesale. fill writes the complete new
// contents; readers keep seeing the previous contents until fill returns
// nil and the new index is published. When fill fails the previous index
// is left untouched.
type Rebuilder interface {
	Rebuild(ctx context.Context, fill func(w Writer) error) error
}

// Index is a vector store that supports atomic wholesale rebuilds.
type Index interface {
	VectorStore
	Rebuilder
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
