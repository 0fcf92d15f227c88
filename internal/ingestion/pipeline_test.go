package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/rag"
)

// lengthEmbedder maps each text to a small vector derived from its length.
type lengthEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{1, float32(len(s)%7) + 1, 0.5}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, dataDir string, emb rag.Embedder) (*Pipeline, *rag.LocalIndex) {
	t.Helper()
	idx, err := rag.OpenLocalIndex(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	p, err := NewPipeline(emb, idx, Config{
		DataDir:      dataDir,
		ChunkSize:    40,
		ChunkOverlap: 10,
		BatchSize:    2,
	}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return p, idx
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	data := t.TempDir()
	writeFile(t, data, "citizenship/renewal.md", "# Renewal\n"+strings.Repeat("Citizenship renewal requires forms. ", 4))
	writeFile(t, data, "land.md", "Land transfer needs the deed.")

	emb := &lengthEmbedder{}
	p, idx := newTestPipeline(t, data, emb)

	var stages []string
	stats, err := p.Run(context.Background(), func(stage string, done, total int) {
		if done > total {
			t.Errorf("%s: done %d > total %d", stage, done, total)
		}
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents != 2 {
		t.Errorf("Documents: got %d, want 2", stats.Documents)
	}
	if stats.Chunks < 3 {
		t.Errorf("Chunks: got %d, want at least 3", stats.Chunks)
	}
	if idx.Len() != stats.Chunks {
		t.Errorf("index holds %d chunks, stats say %d", idx.Len(), stats.Chunks)
	}
	if want := int32((stats.Chunks + 1) / 2); emb.calls.Load() != want {
		t.Errorf("embed calls: got %d, want %d", emb.calls.Load(), want)
	}
	if len(stages) == 0 || stages[0] != StageLoad || stages[len(stages)-1] != StageEmbed {
		t.Errorf("unexpected stage sequence %v", stages)
	}

	docs, err := idx.Search(context.Background(), []float32{1, 1, 0.5}, 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if d.Source == "" || d.Metadata[MetaCategory] == "" || d.StartIndex < 0 {
			t.Errorf("chunk missing provenance: %+v", d)
		}
	}
}

func TestPipeline_DeterministicIDs(t *testing.T) {
	t.Parallel()

	if chunkID("a.md", 0) != chunkID("a.md", 0) {
		t.Error("chunk IDs should be stable")
	}
	if chunkID("a.md", 0) == chunkID("a.md", 1) {
		t.Error("chunk IDs should differ by index")
	}
}

func TestPipeline_NoDocumentsKeepsIndex(t *testing.T) {
	t.Parallel()

	data := t.TempDir()
	writeFile(t, data, "a.md", "Citizenship renewal requires forms A and B.")
	p, idx := newTestPipeline(t, data, &lengthEmbedder{})

	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	before := idx.Len()

	empty := t.TempDir()
	p2, err := NewPipeline(&lengthEmbedder{}, idx, Config{DataDir: empty}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p2.Run(context.Background(), nil); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err = %v, want ErrNoDocuments", err)
	}
	if idx.Len() != before {
		t.Errorf("index changed: %d -> %d", before, idx.Len())
	}
}

func TestPipeline_EmbedFailureKeepsIndex(t *testing.T) {
	t.Parallel()

	data := t.TempDir()
	writeFile(t, data, "a.md", "Citizenship renewal requires forms A and B.")

	emb := &lengthEmbedder{}
	p, idx := newTestPipeline(t, data, emb)
	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	before := idx.Len()

	writeFile(t, data, "b.md", "Land transfer needs the deed.")
	emb.err = errors.New("embedding service down")
	if _, err := p.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if idx.Len() != before {
		t.Errorf("failed run changed the index: %d -> %d", before, idx.Len())
	}
}

func TestPipeline_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, t.TempDir(), &lengthEmbedder{})

	run, err := p.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), nil); !errors.Is(err, ErrIngestInProgress) {
		t.Errorf("Run while claimed: err = %v, want ErrIngestInProgress", err)
	}
	if _, err := p.Claim(); !errors.Is(err, ErrIngestInProgress) {
		t.Errorf("second Claim: err = %v, want ErrIngestInProgress", err)
	}

	// The claimed run releases the lock when it returns, even on failure.
	if _, err := run(context.Background(), nil); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("claimed run: err = %v, want ErrNoDocuments", err)
	}
	if _, err := p.Claim(); err != nil {
		t.Errorf("Claim after run: %v", err)
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	idx, err := rag.OpenLocalIndex(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPipeline(nil, idx, Config{}, logging.Discard()); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(&lengthEmbedder{}, nil, Config{}, logging.Discard()); err == nil {
		t.Error("expected error for nil index")
	}
	if _, err := NewPipeline(&lengthEmbedder{}, idx, Config{ChunkSize: 10, ChunkOverlap: 10}, logging.Discard()); err == nil {
		t.Error("expected error for overlap >= size")
	}
}
