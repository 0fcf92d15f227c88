// Package ingestion builds the vector index from a directory of source
// documents: load, split into overlapping chunks, embed in batches, and
// publish the complete index atomically. It backs `junu ingest` and the
// server's POST /ingest route.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/rag"
)

var (
	// ErrIngestInProgress is returned when a run is requested while another
	// run of the same pipeline has not finished.
	ErrIngestInProgress = errors.New("ingestion: a run is already in progress")

	// ErrNoDocuments is returned when the data dir holds no recognised
	// documents. The existing index is left untouched.
	ErrNoDocuments = errors.New("ingestion: no documents found")
)

// Progress stages reported to a ProgressFunc.
const (
	StageLoad  = "load"
	StageSplit = "split"
	StageEmbed = "embed"
)

// chunkNamespace seeds deterministic chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/junu-go/chunk"))

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// DataDir is the root directory of source documents. Defaults to "Data".
	DataDir string

	// Extensions lists the recognised file extensions. Defaults to [".md"].
	Extensions []string

	// ChunkSize is the maximum chunk length in characters. Defaults to 1200.
	ChunkSize int

	// ChunkOverlap is the number of characters neighbouring chunks share.
	// Defaults to 300.
	ChunkOverlap int

	// Splitter names the chunking strategy (window or recursive).
	Splitter string

	// BatchSize is the number of chunks per embedding request. Defaults to 32.
	BatchSize int

	// EmbedTimeout bounds each embedding request. Defaults to 2m.
	EmbedTimeout time.Duration
}

// ConfigFromEnv reads INGEST_DATA_DIR, INGEST_EXTENSIONS, INGEST_CHUNK_SIZE,
// INGEST_CHUNK_OVERLAP, INGEST_SPLITTER, INGEST_BATCH_SIZE and
// INGEST_EMBED_TIMEOUT.
func ConfigFromEnv() Config {
	return Config{
		DataDir:      config.String("INGEST_DATA_DIR", "Data"),
		Extensions:   config.List("INGEST_EXTENSIONS", DefaultExtensions),
		ChunkSize:    config.Int("INGEST_CHUNK_SIZE", 1200),
		ChunkOverlap: config.Int("INGEST_CHUNK_OVERLAP", 300),
		Splitter:     config.String("INGEST_SPLITTER", SplitterWindow),
		BatchSize:    config.Int("INGEST_BATCH_SIZE", 32),
		EmbedTimeout: config.Duration("INGEST_EMBED_TIMEOUT", 2*time.Minute),
	}
}

// Stats summarises a completed run.
type Stats struct {
	Documents int
	Chunks    int
	Duration  time.Duration
}

// ProgressFunc receives progress updates. done counts up to total within
// each stage.
type ProgressFunc func(stage string, done, total int)

// Pipeline orchestrates the load → split → embed → publish flow. A Pipeline
// runs at most one ingestion at a time.
type Pipeline struct {
	embedder rag.Embedder
	index    rag.Index
	splitter Splitter
	cfg      Config
	log      *slog.Logger

	// mu is held for the duration of a run.
	mu sync.Mutex
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.Index, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, errors.New("ingestion: index must not be nil")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "Data"
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 2 * time.Minute
	}

	splitter, err := NewSplitter(cfg.Splitter, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		splitter: splitter,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Config returns the resolved pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run rebuilds the index from the data dir. The previous index stays live
// until the new one is complete; on any error it is left untouched.
func (p *Pipeline) Run(ctx context.Context, progress ProgressFunc) (Stats, error) {
	run, err := p.Claim()
	if err != nil {
		return Stats{}, err
	}
	return run(ctx, progress)
}

// Claim takes the single-writer lock now and returns a function that performs
// one run and then releases it. Callers that reply before the run starts use
// it to report ErrIngestInProgress synchronously. The returned function must
// be called exactly once.
func (p *Pipeline) Claim() (func(context.Context, ProgressFunc) (Stats, error), error) {
	if !p.mu.TryLock() {
		return nil, ErrIngestInProgress
	}
	return func(ctx context.Context, progress ProgressFunc) (Stats, error) {
		defer p.mu.Unlock()
		return p.run(ctx, progress)
	}, nil
}

func (p *Pipeline) run(ctx context.Context, progress ProgressFunc) (Stats, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	started := time.Now()

	docs, err := LoadDirectory(p.cfg.DataDir, p.cfg.Extensions)
	if err != nil {
		return Stats{}, err
	}
	progress(StageLoad, len(docs), len(docs))
	if len(docs) == 0 {
		return Stats{}, fmt.Errorf("%w in %s", ErrNoDocuments, p.cfg.DataDir)
	}

	var chunks []rag.Document
	for i, doc := range docs {
		parts, err := p.splitter.Split(doc.Content)
		if err != nil {
			return Stats{}, fmt.Errorf("ingestion: split %s: %w", doc.Path, err)
		}
		for _, c := range parts {
			chunks = append(chunks, rag.Document{
				ID:         chunkID(doc.Path, c.Index),
				Content:    c.Text,
				Source:     doc.Path,
				StartIndex: c.Start,
				Metadata:   chunkMetadata(doc.Metadata, c),
			})
		}
		p.log.Debug("ingestion: split document",
			slog.String("source", doc.Path),
			slog.Int("chunks", len(parts)),
		)
		progress(StageSplit, i+1, len(docs))
	}
	if len(chunks) == 0 {
		return Stats{}, fmt.Errorf("%w: every document in %s is empty", ErrNoDocuments, p.cfg.DataDir)
	}

	err = p.index.Rebuild(ctx, func(w rag.Writer) error {
		return p.embedAll(ctx, w, chunks, progress)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("ingestion: %w", err)
	}

	stats := Stats{Documents: len(docs), Chunks: len(chunks), Duration: time.Since(started)}
	p.log.Info("ingestion: index rebuilt",
		slog.String("data_dir", p.cfg.DataDir),
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// embedAll embeds chunks in batches and writes each batch to w.
func (p *Pipeline) embedAll(ctx context.Context, w rag.Writer, chunks []rag.Document, progress ProgressFunc) error {
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		ectx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
		vecs, err := p.embedder.Embed(ectx, texts)
		cancel()
		if err != nil {
			return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedding chunks %d-%d: expected %d vectors, got %d", start, end-1, len(batch), len(vecs))
		}

		if err := w.Upsert(ctx, batch, vecs); err != nil {
			return err
		}
		progress(StageEmbed, end, len(chunks))
	}
	return nil
}

// chunkID derives a stable UUID from the source path and chunk index so
// re-ingesting unchanged files yields the same IDs.
func chunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(index))).String()
}

func chunkMetadata(doc map[string]string, c Chunk) map[string]string {
	m := make(map[string]string, len(doc)+1)
	for k, v := range doc {
		m[k] = v
	}
	m["chunk_index"] = strconv.Itoa(c.Index)
	return m
}
