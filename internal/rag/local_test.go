package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestIndex(t *testing.T) *LocalIndex {
	t.Helper()
	idx, err := OpenLocalIndex(context.Background(), filepath.Join(t.TempDir(), "chroma"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func fillWith(docs []Document, vecs [][]float32) func(Writer) error {
	return func(w Writer) error {
		return w.Upsert(context.Background(), docs, vecs)
	}
}

func TestLocalIndex_EmptySearch(t *testing.T) {
	t.Parallel()
	idx := openTestIndex(t)

	got, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want no results on empty index, got %d", len(got))
	}
	if _, err := os.Stat(idx.Path()); !os.IsNotExist(err) {
		t.Errorf("opening must not create the index file, stat err = %v", err)
	}
}

func TestLocalIndex_RebuildAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	docs := []Document{
		{ID: "a", Content: "citizenship", Source: "a.md", Metadata: map[string]string{"title": "A"}},
		{ID: "b", Content: "land", Source: "b.md", StartIndex: 900},
		{ID: "c", Content: "passport", Source: "c.md"},
	}
	vecs := [][]float32{{1, 0, 0}, {0.6, 0.8, 0}, {-1, 0, 0}}
	if err := idx.Rebuild(ctx, fillWith(docs, vecs)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if idx.Len() != 3 || idx.Dimensions() != 3 {
		t.Fatalf("want 3 chunks of dim 3, got %d/%d", idx.Len(), idx.Dimensions())
	}

	got, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 results, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Score != 1 {
		t.Errorf("first result: want a/1, got %s/%v", got[0].ID, got[0].Score)
	}
	if got[0].Metadata["title"] != "A" {
		t.Errorf("metadata not round-tripped: %v", got[0].Metadata)
	}
	if got[1].ID != "b" || got[1].StartIndex != 900 {
		t.Errorf("second result: want b@900, got %s@%d", got[1].ID, got[1].StartIndex)
	}
	if got[2].Score != 0 {
		t.Errorf("opposite vector must clamp to 0, got %v", got[2].Score)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not in descending order: %v", got)
		}
	}

	top1, _ := idx.Search(ctx, []float32{1, 0, 0}, 1)
	if len(top1) != 1 {
		t.Errorf("topK=1: got %d", len(top1))
	}
}

func TestLocalIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.Rebuild(ctx, fillWith([]Document{{ID: "a", Content: "x"}}, [][]float32{{1, 0}})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := idx.Search(ctx, []float32{1, 0, 0}, 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}

	err := idx.Rebuild(ctx, fillWith(
		[]Document{{ID: "a", Content: "x"}, {ID: "b", Content: "y"}},
		[][]float32{{1, 0}, {1, 0, 0}},
	))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mixed dimensions in one rebuild: want ErrDimensionMismatch, got %v", err)
	}
}

func TestLocalIndex_FailedRebuildKeepsPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.Rebuild(ctx, fillWith([]Document{{ID: "old", Content: "old"}}, [][]float32{{1, 0}})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	boom := errors.New("embedder down")
	err := idx.Rebuild(ctx, func(w Writer) error {
		if err := w.Upsert(ctx, []Document{{ID: "new", Content: "new"}}, [][]float32{{0, 1}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want fill error, got %v", err)
	}

	got, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "old" {
		t.Errorf("previous index must survive a failed rebuild, got %v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(idx.Path()))
	for _, e := range entries {
		if e.Name() != IndexFileName {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestLocalIndex_RebuildReplacesWholesale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.Rebuild(ctx, fillWith([]Document{{ID: "a", Content: "a"}, {ID: "b", Content: "b"}}, [][]float32{{1, 0}, {0, 1}})); err != nil {
		t.Fatal(err)
	}
	if err := idx.Rebuild(ctx, fillWith([]Document{{ID: "c", Content: "c"}}, [][]float32{{1, 1}})); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Errorf("want only the new chunk, got %d", idx.Len())
	}
}

func TestLocalIndex_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chroma")

	idx, err := OpenLocalIndex(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Rebuild(ctx, fillWith([]Document{{ID: "a", Content: "नागरिकता", Source: "Data/a.md"}}, [][]float32{{0.5, 0.5}})); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenLocalIndex(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Search(ctx, []float32{1, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "नागरिकता" || got[0].Source != "Data/a.md" {
		t.Errorf("unexpected reopened contents: %v", got)
	}
}

func TestLocalIndex_UpsertAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := openTestIndex(t)

	if err := idx.Upsert(ctx, []Document{{ID: "a", Content: "a"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, []Document{{ID: "a", Content: "a2"}, {ID: "b", Content: "b"}}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("want 2 chunks after upsert by id, got %d", idx.Len())
	}
	if err := idx.Upsert(ctx, []Document{{ID: "c"}}, nil); err == nil {
		t.Error("want error for mismatched docs/embeddings")
	}

	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("want empty index after clear, got %d", idx.Len())
	}
}

func TestVectorCodec(t *testing.T) {
	t.Parallel()
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: got %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("want error for truncated blob")
	}
}
